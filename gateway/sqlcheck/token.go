package sqlcheck

import (
	"fmt"
	"strings"
)

// Dialect selects the lexing rules of the target engine. The engines
// disagree in ways that move statement boundaries: MySQL treats # as a
// line comment, backslash as a string escape, and backticks as
// identifier quotes; Postgres treats # as an operator, backslashes in
// ordinary string literals as plain characters, and supports
// dollar-quoted strings and $n placeholders.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DialectForDriver maps a database/sql driver name to its lexing rules.
// Unknown drivers get the Postgres rules.
func DialectForDriver(driver string) Dialect {
	if driver == "mysql" {
		return DialectMySQL
	}
	return DialectPostgres
}

// tokenKind classifies a lexical token.
type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokString
	tokIdent // quoted identifier ("..." or `...`)
	tokParam // $1, ? placeholders
	tokStar
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokSemicolon
	tokOperator
)

// token is one lexical unit of the statement. start/end are byte offsets
// into the original text, half-open. text is lowercased for tokWord.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// span marks a byte range to blank out when normalizing (comments).
type span struct {
	start int
	end   int
}

// tokenize splits sql into tokens under the given dialect's rules,
// recording comment spans separately. It understands line comments
// (-- everywhere, # on MySQL), nested block comments, single-quoted
// strings ('' escape everywhere, \' only on MySQL), quoted identifiers
// ("..." everywhere, `...` only on MySQL), and on Postgres
// dollar-quoted strings and $n placeholders. Any construct it cannot
// terminate is an error; the caller rejects rather than guesses.
func tokenize(sql string, d Dialect) ([]token, []span, error) {
	var tokens []token
	var comments []span

	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			start := i
			for i < n && sql[i] != '\n' {
				i++
			}
			comments = append(comments, span{start, i})

		// # starts a comment on MySQL only; Postgres lexes it as an
		// operator and the default case below handles that.
		case c == '#' && d == DialectMySQL:
			start := i
			for i < n && sql[i] != '\n' {
				i++
			}
			comments = append(comments, span{start, i})

		case c == '/' && i+1 < n && sql[i+1] == '*':
			start := i
			depth := 1
			i += 2
			for i < n && depth > 0 {
				if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
					depth++
					i += 2
				} else if i+1 < n && sql[i] == '*' && sql[i+1] == '/' {
					depth--
					i += 2
				} else {
					i++
				}
			}
			if depth > 0 {
				return nil, nil, fmt.Errorf("unterminated block comment at offset %d", start)
			}
			comments = append(comments, span{start, i})

		case c == '\'':
			start := i
			i++
			closed := false
			for i < n {
				// Backslash escapes only exist on MySQL; Postgres
				// ordinary strings take backslash literally
				// (standard_conforming_strings).
				if d == DialectMySQL && sql[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			tokens = append(tokens, token{tokString, sql[start:i], start, i})

		case c == '"' || (c == '`' && d == DialectMySQL):
			quote := c
			start := i
			i++
			closed := false
			for i < n {
				if sql[i] == quote {
					if i+1 < n && sql[i+1] == quote {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, nil, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			tokens = append(tokens, token{tokIdent, sql[start:i], start, i})

		// On MySQL, $ is an ordinary identifier character, never a
		// quote. Treating $tag$ as a string there would let a fake
		// dollar quote swallow a real statement separator.
		case c == '$' && d == DialectMySQL:
			start := i
			for i < n && (isLetter(sql[i]) || isDigit(sql[i]) || sql[i] == '_' || sql[i] == '$') {
				i++
			}
			tokens = append(tokens, token{tokWord, strings.ToLower(sql[start:i]), start, i})

		case c == '$':
			start := i
			j := i + 1
			for j < n && (isLetter(sql[j]) || sql[j] == '_' || (j > i+1 && isDigit(sql[j]))) {
				j++
			}
			if j < n && sql[j] == '$' {
				// Dollar-quoted string: find the matching $tag$
				tag := sql[i : j+1]
				end := strings.Index(sql[j+1:], tag)
				if end == -1 {
					return nil, nil, fmt.Errorf("unterminated dollar-quoted string at offset %d", start)
				}
				i = j + 1 + end + len(tag)
				tokens = append(tokens, token{tokString, sql[start:i], start, i})
				break
			}
			if i+1 < n && isDigit(sql[i+1]) {
				i++
				for i < n && isDigit(sql[i]) {
					i++
				}
				tokens = append(tokens, token{tokParam, sql[start:i], start, i})
				break
			}
			i++
			tokens = append(tokens, token{tokOperator, "$", start, i})

		case c == '?':
			tokens = append(tokens, token{tokParam, "?", i, i + 1})
			i++

		case isDigit(c) || (c == '.' && i+1 < n && isDigit(sql[i+1])):
			start := i
			for i < n && (isDigit(sql[i]) || sql[i] == '.') {
				i++
			}
			if i < n && (sql[i] == 'e' || sql[i] == 'E') {
				i++
				if i < n && (sql[i] == '+' || sql[i] == '-') {
					i++
				}
				for i < n && isDigit(sql[i]) {
					i++
				}
			}
			tokens = append(tokens, token{tokNumber, sql[start:i], start, i})

		case isLetter(c) || c == '_':
			start := i
			for i < n && (isLetter(sql[i]) || isDigit(sql[i]) || sql[i] == '_' || sql[i] == '$') {
				i++
			}
			tokens = append(tokens, token{tokWord, strings.ToLower(sql[start:i]), start, i})

		case c == '*':
			tokens = append(tokens, token{tokStar, "*", i, i + 1})
			i++

		case c == '.':
			tokens = append(tokens, token{tokDot, ".", i, i + 1})
			i++

		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i, i + 1})
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i, i + 1})
			i++

		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i, i + 1})
			i++

		case c == ';':
			tokens = append(tokens, token{tokSemicolon, ";", i, i + 1})
			i++

		default:
			tokens = append(tokens, token{tokOperator, string(c), i, i + 1})
			i++
		}
	}

	return tokens, comments, nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
