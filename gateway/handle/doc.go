// Package handle is the overflow side of the pipeline: when a result is
// too large to return inline, the manager persists it to the artifact
// store, hands the caller an opaque expiring id, and serves the rows
// back in bounded pages. Artifacts are immutable once written; only the
// manager touches them. A periodic sweep removes expired handles, and a
// per-fetch lease keeps the sweep from deleting an artifact someone is
// still reading.
package handle
