package sqlcheck

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonEmptyStatement    Reason = "empty_statement"
	ReasonStackedStatements Reason = "stacked_statements"
	ReasonNotSelect         Reason = "not_select"
	ReasonSelectStarBlocked Reason = "select_star_blocked"
	ReasonUnparseable       Reason = "unparseable"
)

// Statement is validated, normalized SQL with its effective row limit.
// It can only be produced by Validate, so downstream stages that take a
// Statement are structurally guaranteed a policy-checked input.
type Statement struct {
	sql   string
	limit int
}

// SQL returns the normalized statement text.
func (s Statement) SQL() string { return s.sql }

// Limit returns the effective row limit embedded in the statement.
func (s Statement) Limit() int { return s.limit }

// Verdict is the validation outcome. Exactly one of Statement (accepted)
// or Reason/Message (rejected) is meaningful.
type Verdict struct {
	Accepted  bool
	Statement Statement
	Reason    Reason
	Message   string
}

// Validator enforces the statement policy. It is purely textual and
// structural; it never touches a database.
type Validator struct {
	hardRowLimit    int
	blockSelectStar bool
}

// New creates a Validator with the given hard row limit and SELECT *
// policy. hardRowLimit must be positive.
func New(hardRowLimit int, blockSelectStar bool) *Validator {
	return &Validator{
		hardRowLimit:    hardRowLimit,
		blockSelectStar: blockSelectStar,
	}
}

func rejected(reason Reason, format string, args ...interface{}) Verdict {
	return Verdict{
		Accepted: false,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
	}
}

// edit is a byte-range replacement applied when normalizing.
type edit struct {
	start int
	end   int
	repl  string
}

// Validate applies the policy rules in order; the first failing rule wins.
// dialect selects the connection engine's lexing rules: the same bytes
// can lex to different statement boundaries per engine, and judging them
// under the wrong rules would let a smuggled separator through.
// requestedLimit lowers the effective ceiling when positive; it can never
// raise it past the hard cap. Validation is deterministic: the same input
// always yields the same verdict and the same normalized text, and
// validating an accepted statement's own output is a no-op.
func (v *Validator) Validate(dialect Dialect, sql string, requestedLimit int) Verdict {
	tokens, comments, err := tokenize(sql, dialect)
	if err != nil {
		return rejected(ReasonUnparseable, "cannot tokenize statement: %v", err)
	}

	if len(tokens) == 0 {
		return rejected(ReasonEmptyStatement, "statement is empty")
	}

	// Rule 1: a single statement, with at most one trailing separator.
	var edits []edit
	for i, t := range tokens {
		if t.kind != tokSemicolon {
			continue
		}
		if i != len(tokens)-1 {
			return rejected(ReasonStackedStatements, "multiple statements are not allowed")
		}
		edits = append(edits, edit{t.start, t.end, ""})
		tokens = tokens[:i]
	}
	if len(tokens) == 0 {
		return rejected(ReasonEmptyStatement, "statement is empty")
	}

	// Rule 2: the leading keyword must be SELECT. Anything else,
	// including WITH, is rejected rather than classified.
	lead := tokens[0]
	if lead.kind != tokWord || lead.text != "select" {
		return rejected(ReasonNotSelect, "leading keyword must be SELECT, got %q", lead.text)
	}

	// Rule 3: no star projection when blocked.
	if v.blockSelectStar && hasTopLevelStar(tokens[1:]) {
		return rejected(ReasonSelectStarBlocked, "SELECT * is blocked by policy")
	}

	// Rule 4: clamp or inject LIMIT against the effective ceiling.
	ceiling := v.hardRowLimit
	if requestedLimit > 0 && requestedLimit < ceiling {
		ceiling = requestedLimit
	}

	limitTok, present, perr := findLimitValue(tokens)
	if perr != nil {
		return rejected(ReasonUnparseable, "%v", perr)
	}

	effective := ceiling
	if present {
		if limitTok.kind == tokWord {
			// LIMIT ALL places no bound; rewrite it to the ceiling.
			edits = append(edits, edit{limitTok.start, limitTok.end, strconv.Itoa(ceiling)})
		} else {
			count, err := strconv.Atoi(limitTok.text)
			if err != nil {
				return rejected(ReasonUnparseable, "LIMIT value %q is not an integer literal", limitTok.text)
			}
			if count > ceiling {
				edits = append(edits, edit{limitTok.start, limitTok.end, strconv.Itoa(ceiling)})
			} else {
				effective = count
			}
		}
	}

	for _, c := range comments {
		edits = append(edits, edit{c.start, c.end, " "})
	}

	normalized := strings.TrimSpace(applyEdits(sql, edits))
	if !present {
		normalized = normalized + " LIMIT " + strconv.Itoa(ceiling)
	}

	return Verdict{
		Accepted:  true,
		Statement: Statement{sql: normalized, limit: effective},
	}
}

// hasTopLevelStar reports whether a star appears at parenthesis depth
// zero in the projection list (everything before the top-level FROM).
// Stars inside parentheses, like count(*), are aggregate syntax, not
// projections. A qualified t.* counts as a star projection.
func hasTopLevelStar(tokens []token) bool {
	depth := 0
	for _, t := range tokens {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokWord:
			if depth == 0 && t.text == "from" {
				return false
			}
		case tokStar:
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

// findLimitValue locates the row-count value of the statement's top-level
// LIMIT clause. It handles `LIMIT n`, `LIMIT n OFFSET m`, MySQL's
// `LIMIT offset, n`, and `LIMIT ALL` (returned as the ALL word token so
// the caller rewrites it). A non-literal LIMIT value is an error.
func findLimitValue(tokens []token) (token, bool, error) {
	depth := 0
	idx := -1
	for i, t := range tokens {
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokWord:
			if depth == 0 && t.text == "limit" {
				idx = i
			}
		}
	}
	if idx == -1 {
		return token{}, false, nil
	}
	if idx+1 >= len(tokens) {
		return token{}, false, fmt.Errorf("LIMIT clause has no value")
	}

	first := tokens[idx+1]
	if first.kind == tokWord && first.text == "all" {
		return first, true, nil
	}
	if first.kind != tokNumber {
		return token{}, false, fmt.Errorf("LIMIT value %q is not a numeric literal", first.text)
	}

	// MySQL form: LIMIT offset, count. The count is the second number.
	if idx+3 < len(tokens) && tokens[idx+2].kind == tokComma {
		second := tokens[idx+3]
		if second.kind != tokNumber {
			return token{}, false, fmt.Errorf("LIMIT count %q is not a numeric literal", second.text)
		}
		return second, true, nil
	}

	return first, true, nil
}

// applyEdits splices the replacements into s, rightmost first so earlier
// offsets stay valid.
func applyEdits(s string, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	for _, e := range edits {
		s = s[:e.start] + e.repl + s[e.end:]
	}
	return s
}
