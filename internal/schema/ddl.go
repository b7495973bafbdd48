package schema

import "strings"

// ExtractColumnType finds the type clause of column in a CREATE TABLE
// statement. Only the column list is searched, and only at the start of a
// column definition, where the column must be written as
// `"<column>" <type-clause>`. The clause runs to the next comma or closing
// parenthesis outside of nested parentheses, string literals and quoted
// identifiers, so NUMERIC(10,2) and DEFAULT 'a,b' survive. Whitespace inside
// the clause is collapsed to single spaces.
//
// This is a textual contract with the registry: a column declared in any
// other form is not found and ok is false.
func ExtractColumnType(createSQL, column string) (typ string, ok bool) {
	open := columnListStart(createSQL)
	if open < 0 {
		return "", false
	}
	needle := `"` + column + `"`

	s := createSQL[open+1:]
	for {
		def := strings.TrimLeft(s, " \t\n\r")
		if rest, found := strings.CutPrefix(def, needle); found && rest != "" && isSpace(rest[0]) {
			if clause := scanClause(rest); clause != "" {
				return clause, true
			}
		}
		end := clauseEnd(s)
		if end >= len(s) || s[end] != ',' {
			return "", false
		}
		s = s[end+1:]
	}
}

// columnListStart returns the index of the parenthesis opening the column
// list, skipping quoted table names.
func columnListStart(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			return i
		}
	}
	return -1
}

// scanClause reads a column definition up to its terminating comma or the
// parenthesis closing the column list.
func scanClause(s string) string {
	return strings.Join(strings.Fields(s[:clauseEnd(s)]), " ")
}

// clauseEnd returns the index of the depth-0 comma or closing parenthesis
// that ends the definition at the start of s, or len(s).
func clauseEnd(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i
			}
			depth--
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return len(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
