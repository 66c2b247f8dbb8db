package context

import (
	"strconv"
	"strings"
)

// conditionOps lists the recognized operators in the priority order spec.md
// §4.7 mandates, so `>=`/`<=` are matched before their single-character
// prefixes `>`/`<`.
var conditionOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// Evaluate implements spec.md §4.7's condition evaluation: `<lhs> <op> <rhs>`
// where lhs is always a path and rhs is a literal, a `${path}` reference, or
// a bare token treated as a string.
func (c *Context) Evaluate(condition string) bool {
	condition = strings.TrimSpace(condition)

	op, lhsRaw, rhsRaw, ok := splitCondition(condition)
	if !ok {
		return false
	}

	lhsVal, _ := c.ResolvePath(strings.TrimSpace(lhsRaw))
	rhsVal := c.parseRHS(strings.TrimSpace(rhsRaw))

	switch op {
	case "==":
		return looseEqual(lhsVal, rhsVal)
	case "!=":
		return !looseEqual(lhsVal, rhsVal)
	case ">=", "<=", ">", "<":
		return compareOrdered(lhsVal, rhsVal, op)
	case "contains":
		return containsValue(lhsVal, rhsVal)
	default:
		return false
	}
}

// splitCondition finds the first operator (by priority, not position) that
// appears in s and splits around it.
func splitCondition(s string) (op, lhs, rhs string, ok bool) {
	for _, candidate := range conditionOps {
		if idx := strings.Index(s, candidate); idx >= 0 {
			return candidate, s[:idx], s[idx+len(candidate):], true
		}
	}
	if idx := strings.Index(s, " contains "); idx >= 0 {
		return "contains", s[:idx], s[idx+len(" contains "):], true
	}
	return "", "", "", false
}

func (c *Context) parseRHS(token string) any {
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") {
		v, _ := c.ResolvePath(token[2 : len(token)-1])
		return v
	}
	if len(token) >= 2 {
		if (token[0] == '"' && token[len(token)-1] == '"') || (token[0] == '\'' && token[len(token)-1] == '\'') {
			return token[1 : len(token)-1]
		}
	}
	switch strings.ToLower(token) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if i, err := strconv.Atoi(token); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return toComparableString(a) == toComparableString(b)
}

func compareOrdered(a, b any, op string) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case ">=":
			return af >= bf
		case "<=":
			return af <= bf
		case ">":
			return af > bf
		case "<":
			return af < bf
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case ">=":
			return as >= bs
		case "<=":
			return as <= bs
		case ">":
			return as > bs
		case "<":
			return as < bs
		}
	}
	return false
}

func containsValue(lhs, rhs any) bool {
	switch v := lhs.(type) {
	case string:
		s, ok := rhs.(string)
		if !ok {
			s = toComparableString(rhs)
		}
		return strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if looseEqual(item, rhs) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}

func toComparableString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}
