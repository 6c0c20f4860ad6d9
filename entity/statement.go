package entity

import (
	"strings"
)

// NormalizeWhitespace collapses all whitespace runs to a single space.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// StripTerminatingSemicolon removes a trailing semicolon from a SQL statement.
func StripTerminatingSemicolon(sql string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";"))
}

// StripDoubleQuotes removes starting and ending double quotes from an identifier.
func StripDoubleQuotes(ident string) string {
	ident = strings.TrimSuffix(strings.TrimSpace(ident), `"`)
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ident), `"`))
}

// CoerceToQuoted coerces a possibly qualified identifier to its double quoted
// form:
//
//	CoerceToQuoted(`public`)         => `"public"`
//	CoerceToQuoted(`public.table`)   => `"public"."table"`
//	CoerceToQuoted(`"public".table`) => `"public"."table"`
func CoerceToQuoted(ident string) string {
	if schema, name, ok := strings.Cut(ident, "."); ok {
		return `"` + StripDoubleQuotes(schema) + `"."` + StripDoubleQuotes(name) + `"`
	}
	return `"` + StripDoubleQuotes(ident) + `"`
}

// CoerceToUnquoted strips every double quote from a possibly qualified
// identifier: `"public".table` => `public.table`.
func CoerceToUnquoted(ident string) string {
	return strings.ReplaceAll(ident, `"`, "")
}

// FormatStorageParameters renders a materialized view storage parameter list
// as a WITH clause with a leading space, or "" for an empty list:
//
//	FormatStorageParameters([]string{"fillfactor=70", "autovacuum_enabled"})
//	=> ` WITH (fillfactor=70, autovacuum_enabled)`
func FormatStorageParameters(params []string) string {
	if len(params) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(params))
	for _, p := range params {
		cleaned = append(cleaned, NormalizeWhitespace(p))
	}
	return " WITH (" + strings.Join(cleaned, ", ") + ")"
}

// ParseStorageParameters splits a raw storage parameter string into its
// "name" or "name=value" elements.
func ParseStorageParameters(raw string) []string {
	var params []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, value, ok := strings.Cut(part, "="); ok {
			part = strings.TrimSpace(name) + "=" + strings.TrimSpace(value)
		}
		params = append(params, part)
	}
	return params
}

// SplitStatements splits a SQL script into individual statements on
// semicolons, honoring single quotes, double quotes, dollar quoting and line
// comments so separators inside literals or function bodies are preserved.
func SplitStatements(script string) []string {
	var (
		out      []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		inLine   bool
		dollar   string
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inLine {
			current.WriteRune(r)
			if r == '\n' {
				inLine = false
			}
			continue
		}
		if dollar != "" {
			current.WriteRune(r)
			if r == '$' && strings.HasSuffix(current.String(), dollar) {
				dollar = ""
			}
			continue
		}

		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '-':
			if !inSingle && !inDouble && i+1 < len(runes) && runes[i+1] == '-' {
				inLine = true
			}
		case '$':
			if !inSingle && !inDouble {
				if tag, ok := dollarTagAt(runes, i); ok {
					dollar = tag
					current.WriteString(tag)
					i += len(tag) - 1
					continue
				}
			}
		case ';':
			if !inSingle && !inDouble {
				flush()
				continue
			}
		}
		current.WriteRune(r)
	}
	flush()
	return out
}

// dollarTagAt reports the dollar quote tag starting at index i, e.g. "$$" or
// "$body$".
func dollarTagAt(runes []rune, i int) (string, bool) {
	j := i + 1
	for j < len(runes) {
		r := runes[j]
		if r == '$' {
			return string(runes[i : j+1]), true
		}
		if !isTagRune(r) {
			return "", false
		}
		j++
	}
	return "", false
}

func isTagRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
