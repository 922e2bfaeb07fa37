// Package executor is the third pipeline stage: it runs a plan-approved
// statement inside a transaction the backend itself holds read-only, so
// writes smuggled through functions or side-effecting expressions fail
// at the database even if they slipped past the textual checks. Every
// run carries a clamped statement timeout, collects rows up to the
// effective limit, and rolls back unconditionally.
package executor
