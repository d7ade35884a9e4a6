// Package filter compiles the feed filter DSL into domain.FilterRule slices
// and evaluates them against feed items.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// Compile parses a filter string (rules separated by '%') into an ordered
// list of FilterRule. Unknown commands or malformed terms return an error
// naming the offending rule index.
func Compile(expr string) ([]domain.FilterRule, error) {
	raw := strings.Split(expr, "%")
	rules := make([]domain.FilterRule, 0, len(raw))

	for i, chunk := range raw {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		rule, err := compileRule(chunk)
		if err != nil {
			return nil, fmt.Errorf("filter rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func compileRule(chunk string) (domain.FilterRule, error) {
	var rule domain.FilterRule

	if strings.HasPrefix(chunk, "#") {
		rule.Command = domain.RuleComment
		return rule, nil
	}

	cmd, rest, optStr, err := splitCommand(chunk)
	if err != nil {
		return rule, err
	}

	switch cmd {
	case "A":
		rule.Command = domain.RuleAccept
	case "R":
		rule.Command = domain.RuleReject
	case "Q":
		rule.Command = domain.RuleRequire
	case "O":
		rule.Command = domain.RuleOptionsOnly
	default:
		return rule, fmt.Errorf("unknown command %q", cmd)
	}

	if optStr != "" {
		if err := applyOptions(&rule, optStr); err != nil {
			return rule, err
		}
	}

	terms, err := tokenizeTerms(rest)
	if err != nil {
		return rule, err
	}
	rule.Terms = terms

	return rule, nil
}

// splitCommand splits "A(opt,opt):terms" or "A:terms" into its letter,
// term string, and option string.
func splitCommand(chunk string) (cmd, terms, opts string, err error) {
	i := 0
	for i < len(chunk) && chunk[i] != ':' && chunk[i] != '(' {
		i++
	}
	if i == 0 {
		return "", "", "", fmt.Errorf("missing command letter in %q", chunk)
	}
	cmd = chunk[:i]

	if i < len(chunk) && chunk[i] == '(' {
		end := strings.IndexByte(chunk[i:], ')')
		if end == -1 {
			return "", "", "", fmt.Errorf("unterminated option group in %q", chunk)
		}
		opts = chunk[i+1 : i+end]
		i += end + 1
	}

	if i < len(chunk) && chunk[i] == ':' {
		i++
	}
	terms = strings.TrimSpace(chunk[i:])
	return cmd, terms, opts, nil
}

func applyOptions(rule *domain.FilterRule, optStr string) error {
	for _, pair := range strings.Split(optStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		key := strings.TrimSpace(kv[0])
		val := ""
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}

		switch key {
		case "category", "c":
			rule.Category = val
		case "pause", "p":
			rule.Pause = true
		case "priority", "r":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("priority option: %w", err)
			}
			rule.Priority = n
			rule.HasPriority = true
		case "priority+", "r+":
			n, _ := strconv.Atoi(val)
			rule.AddPriority = n
		case "dupescore", "s":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("dupescore option: %w", err)
			}
			rule.DupeScore = n
			rule.HasDupeScore = true
		case "dupescore+", "s+":
			n, _ := strconv.Atoi(val)
			rule.AddDupeScore = n
		case "dupekey", "k":
			rule.DupeKey = val
		case "dupekey+", "k+":
			rule.AddDupeKey = val
		case "dupemode", "m":
			rule.DupeMode = domain.DupeMode(val)
		case "rageid":
			rule.RageID = val
		case "tvdbid":
			rule.TVDBID = val
		case "tvmazeid":
			rule.TVMazeID = val
		case "series":
			rule.Series = val
		default:
			return fmt.Errorf("unknown option key %q", key)
		}
	}
	return nil
}

// tokenizeTerms splits a whitespace-separated term string into
// FilterTerms, recognizing the grouping tokens '(' ')' '|' as their own
// terms.
func tokenizeTerms(s string) ([]domain.FilterTerm, error) {
	fields := strings.Fields(s)
	terms := make([]domain.FilterTerm, 0, len(fields))

	for _, f := range fields {
		switch f {
		case "(":
			terms = append(terms, domain.FilterTerm{Op: domain.OpOpenBrace})
			continue
		case ")":
			terms = append(terms, domain.FilterTerm{Op: domain.OpCloseBrace})
			continue
		case "|":
			terms = append(terms, domain.FilterTerm{Op: domain.OpOr})
			continue
		}

		t, err := parseTerm(f)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}

	return terms, nil
}

func parseTerm(f string) (domain.FilterTerm, error) {
	var t domain.FilterTerm

	if strings.HasPrefix(f, "-") {
		t.Negate = true
		f = f[1:]
	} else if strings.HasPrefix(f, "+") {
		f = f[1:]
	}

	field := "title"
	if idx := strings.IndexByte(f, ':'); idx > 0 {
		maybeField := f[:idx]
		if isFieldName(maybeField) {
			field = maybeField
			f = f[idx+1:]
		}
	}
	t.Field = field

	switch {
	case strings.HasPrefix(f, "$"):
		t.Op = domain.OpRegexMatch
		t.Param = f[1:]
	case strings.HasPrefix(f, ">="):
		t.Op = domain.OpGreaterEq
		return setNumeric(t, f[2:])
	case strings.HasPrefix(f, "<="):
		t.Op = domain.OpLessEq
		return setNumeric(t, f[2:])
	case strings.HasPrefix(f, ">"):
		t.Op = domain.OpGreater
		return setNumeric(t, f[1:])
	case strings.HasPrefix(f, "<"):
		t.Op = domain.OpLess
		return setNumeric(t, f[1:])
	case strings.HasPrefix(f, "="):
		t.Op = domain.OpEquals
		return setNumeric(t, f[1:])
	case strings.HasPrefix(f, "@"):
		t.Op = domain.OpTextMatch
		t.Param = f[1:]
	default:
		t.Op = domain.OpTextMatch
		t.Param = f
	}

	return t, nil
}

func setNumeric(t domain.FilterTerm, raw string) (domain.FilterTerm, error) {
	v, err := ParseSizeOrAge(raw)
	if err != nil {
		return t, err
	}
	if strings.EqualFold(t.Field, "age") {
		if _, bareErr := strconv.ParseFloat(raw, 64); bareErr == nil {
			v *= 86400
		}
	}
	t.Param = raw
	t.NumericValue = v
	t.IsNumeric = true
	return t, nil
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}
