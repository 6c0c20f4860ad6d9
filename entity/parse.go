package entity

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reMatView = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?materialized\s+view\s+(?:if\s+not\s+exists\s+)?([^\s(]+)\s*(?:\([^)]*\))?\s*(?:with\s*\(([^)]*)\)\s*)?as\s+(.+)$`)
	reView    = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?view\s+(?:if\s+not\s+exists\s+)?([^\s(]+)\s*(?:\([^)]*\))?\s*as\s+(.+)$`)
	reFunc    = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?function\s+(.+)$`)
	reTrigger = regexp.MustCompile(`(?is)^\s*create\s+(?:constraint\s+)?trigger\s+("[^"]+"|\S+)\s+(.+)$`)
	rePolicy  = regexp.MustCompile(`(?is)^\s*create\s+policy\s+("[^"]+"|\S+)\s+on\s+(\S+)\s*(.*)$`)
	reExt     = regexp.MustCompile(`(?is)^\s*create\s+extension\s+(?:if\s+not\s+exists\s+)?("[^"]+"|[\w-]+)(?:\s+with)?(?:\s+schema\s+("[^"]+"|[\w$]+))?(?:\s+version\s+\S+)?(?:\s+cascade)?\s*$`)
	reGrant   = regexp.MustCompile(`(?is)^\s*grant\s+([a-z]+)\s*(?:\(([^)]*)\))?\s+on\s+(?:table\s+)?(\S+)\s+to\s+(?:group\s+)?("[^"]+"|\S+?)(\s+with\s+grant\s+option)?\s*$`)

	reWithData  = regexp.MustCompile(`(?i)\s+with\s+(no\s+)?data\s*$`)
	reTriggerOn = regexp.MustCompile(`(?i)\bon\s+((?:"[^"]+"|[\w$]+)\.(?:"[^"]+"|[\w$]+))`)
)

// Parse builds the declared entity equivalent to a single CREATE or GRANT
// statement. Statements that do not describe a supported entity kind fail
// with ErrInvalidDefinition.
func Parse(stmt string) (Entity, error) {
	s := stripLeadingComments(StripTerminatingSemicolon(stmt))
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty statement", ErrInvalidDefinition)
	}

	var (
		e   Entity
		err error
	)
	switch {
	case reMatView.MatchString(s):
		e, err = parseMaterializedView(s)
	case reView.MatchString(s):
		e, err = parseView(s)
	case reFunc.MatchString(s):
		e, err = parseFunction(s)
	case reTrigger.MatchString(s):
		e, err = parseTrigger(s)
	case rePolicy.MatchString(s):
		e, err = parsePolicy(s)
	case reExt.MatchString(s):
		e, err = parseExtension(s)
	case reGrant.MatchString(s):
		e, err = parseGrant(s)
	default:
		return nil, fmt.Errorf("%w: unrecognized statement %q", ErrInvalidDefinition, statementHead(s))
	}
	if err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func parseMaterializedView(s string) (Entity, error) {
	m := reMatView.FindStringSubmatch(s)
	schema, name, err := splitQualified(m[1])
	if err != nil {
		return nil, err
	}
	definition := strings.TrimSpace(m[3])
	withData := true
	if clause := reWithData.FindStringSubmatch(definition); clause != nil {
		withData = strings.TrimSpace(clause[1]) == ""
		definition = strings.TrimSpace(reWithData.ReplaceAllString(definition, ""))
	}
	opts := []MatViewOption{WithData(withData)}
	if params := ParseStorageParameters(m[2]); len(params) > 0 {
		opts = append(opts, WithStorageParameters(params...))
	}
	return NewMaterializedView(schema, name, definition, opts...), nil
}

func parseView(s string) (Entity, error) {
	m := reView.FindStringSubmatch(s)
	schema, name, err := splitQualified(m[1])
	if err != nil {
		return nil, err
	}
	return NewView(schema, name, strings.TrimSpace(m[2])), nil
}

func parseFunction(s string) (Entity, error) {
	rest := strings.TrimSpace(reFunc.FindStringSubmatch(s)[1])
	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return nil, fmt.Errorf("%w: function statement %q has no argument list", ErrInvalidDefinition, statementHead(s))
	}
	schema, name, err := splitQualified(strings.TrimSpace(rest[:open]))
	if err != nil {
		return nil, err
	}
	args, definition, ok := cutBalanced(rest[open:])
	if !ok {
		return nil, fmt.Errorf("%w: function statement %q has an unterminated argument list", ErrInvalidDefinition, statementHead(s))
	}
	return NewFunction(schema, name+"("+strings.TrimSpace(args)+")", strings.TrimSpace(definition)), nil
}

func parseTrigger(s string) (Entity, error) {
	m := reTrigger.FindStringSubmatch(s)
	definition := strings.TrimSpace(m[2])
	on := reTriggerOn.FindStringSubmatch(definition)
	if on == nil {
		return nil, fmt.Errorf("%w: trigger statement %q has no schema qualified ON target", ErrInvalidDefinition, statementHead(s))
	}
	onEntity := CoerceToUnquoted(on[1])
	schema, _, err := splitQualified(onEntity)
	if err != nil {
		return nil, err
	}
	return NewTrigger(schema, cleanIdent(m[1]), onEntity, definition), nil
}

func parsePolicy(s string) (Entity, error) {
	m := rePolicy.FindStringSubmatch(s)
	onEntity := CoerceToUnquoted(m[2])
	schema, _, err := splitQualified(onEntity)
	if err != nil {
		return nil, err
	}
	return NewPolicy(schema, cleanIdent(m[1]), onEntity, strings.TrimSpace(m[3])), nil
}

func parseExtension(s string) (Entity, error) {
	m := reExt.FindStringSubmatch(s)
	schema := cleanIdent(m[2])
	if schema == "" {
		schema = "public"
	}
	return NewExtension(schema, cleanIdent(m[1])), nil
}

func parseGrant(s string) (Entity, error) {
	m := reGrant.FindStringSubmatch(s)
	schema, table, err := splitQualified(m[3])
	if err != nil {
		return nil, err
	}
	var columns []string
	for _, c := range strings.Split(m[2], ",") {
		if c = cleanIdent(c); c != "" {
			columns = append(columns, c)
		}
	}
	withGrantOption := strings.TrimSpace(m[5]) != ""
	return NewGrantTable(schema, table, columns, cleanIdent(m[4]), m[1], withGrantOption), nil
}

// stripLeadingComments drops comment-only lines ahead of the statement.
func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if !strings.HasPrefix(s, "--") {
			return s
		}
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			return ""
		}
		s = s[i+1:]
	}
}

// splitQualified cuts "schema.name" (possibly quoted) at the first dot.
func splitQualified(qualified string) (schema, name string, err error) {
	schema, name, ok := strings.Cut(strings.TrimSpace(qualified), ".")
	if !ok || cleanIdent(schema) == "" || cleanIdent(name) == "" {
		return "", "", fmt.Errorf("%w: name %q must be schema qualified", ErrInvalidDefinition, qualified)
	}
	return cleanIdent(schema), cleanIdent(name), nil
}

// cutBalanced consumes a balanced parenthesized group starting at s[0] and
// returns its contents plus the remainder after the closing paren.
func cutBalanced(s string) (inside, rest string, ok bool) {
	if s == "" || s[0] != '(' {
		return "", "", false
	}
	depth := 0
	inSingle := false
	for i, r := range s {
		switch r {
		case '\'':
			inSingle = !inSingle
		case '(':
			if !inSingle {
				depth++
			}
		case ')':
			if !inSingle {
				depth--
				if depth == 0 {
					return s[1:i], s[i+1:], true
				}
			}
		}
	}
	return "", "", false
}

func statementHead(s string) string {
	s = NormalizeWhitespace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
