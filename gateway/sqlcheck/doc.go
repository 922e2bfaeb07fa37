// Package sqlcheck enforces the statement policy on candidate SQL before
// it can reach a database. It is the first pipeline stage: arbitrary text
// in, a Verdict out. Accepted statements are normalized (comments
// stripped, trailing separator removed, LIMIT clamped or injected) and
// wrapped in a Statement value that only this package can construct,
// which is what the later stages accept.
//
// The checks are an explicit finite rule set over a real tokenizer, not
// regex matching, so comment tricks, string literals containing
// semicolons, and dollar-quoted payloads do not confuse statement
// boundaries. The tokenizer lexes under the target engine's Dialect,
// because MySQL and Postgres disagree on # comments, backslash escapes,
// backticks, and dollar quoting, and judging text under the wrong rules
// can hide a statement separator. Anything the tokenizer cannot
// terminate is rejected, never guessed at.
package sqlcheck
