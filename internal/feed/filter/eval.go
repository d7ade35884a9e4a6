package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

var wordSplitRe = regexp.MustCompile(`[!"#$%&'()*+,\-./:;<=>?@\[\]^_` + "`" + `{|}~]+`)

// Outcome is the result of running one feed item through a compiled rule
// set.
type Outcome struct {
	Status    domain.MatchStatus
	RuleIndex int
	Options   domain.FilterRule
}

// Evaluate runs item against rules in order. The first Accept or
// Options-only rule that matches sets the outcome and (for Accept)
// short-circuits; a Reject or an unmet Require immediately rejects and
// short-circuits. If no rule matches, the item is Ignored.
func Evaluate(rules []domain.FilterRule, item *domain.FeedItem, now time.Time) Outcome {
	var pending *Outcome
	for i, rule := range rules {
		if rule.Command == domain.RuleComment {
			continue
		}

		matched := evalTerms(rule.Terms, item, now)

		switch rule.Command {
		case domain.RuleRequire:
			if !matched {
				return Outcome{Status: domain.MatchRejected, RuleIndex: i}
			}
		case domain.RuleReject:
			if matched {
				return Outcome{Status: domain.MatchRejected, RuleIndex: i, Options: rule}
			}
		case domain.RuleAccept:
			if matched {
				if pending != nil {
					return *pending
				}
				applyBackreferences(&rule, item)
				return Outcome{Status: domain.MatchAccepted, RuleIndex: i, Options: rule}
			}
		case domain.RuleOptionsOnly:
			if matched && pending == nil {
				applyBackreferences(&rule, item)
				pending = &Outcome{Status: domain.MatchAccepted, RuleIndex: i, Options: rule}
			}
		}
	}

	if pending != nil {
		return *pending
	}
	return Outcome{Status: domain.MatchIgnored, RuleIndex: -1}
}

// evalTerms turns a rule's terms into a string of T/F/(/)/| tokens and
// reduces it by repeatedly rewriting adjacent pairs. AND has no higher
// precedence than OR: "a b | c" parses left to right as ((a AND b) OR c)
// only because that is the textual order, not because AND binds tighter —
// callers must parenthesize when they mean something else.
func evalTerms(terms []domain.FilterTerm, item *domain.FeedItem, now time.Time) bool {
	if len(terms) == 0 {
		return true
	}

	tokens := make([]byte, 0, len(terms))
	for _, t := range terms {
		switch t.Op {
		case domain.OpOpenBrace:
			tokens = append(tokens, '(')
		case domain.OpCloseBrace:
			tokens = append(tokens, ')')
		case domain.OpOr:
			tokens = append(tokens, '|')
		default:
			if matchTerm(t, item, now) {
				tokens = append(tokens, 'T')
			} else {
				tokens = append(tokens, 'F')
			}
		}
	}

	return reduce(tokens)
}

// reduce repeatedly rewrites TT->T, TF->F, FT->F, FF->F, T|T->T, T|F->T,
// F|T->T, F|F->F, and (T)->T/(F)->F until a fixed point, then reports
// whether the result is "T".
func reduce(tokens []byte) bool {
	changed := true
	for changed {
		changed = false

		for i := 0; i+2 < len(tokens); i++ {
			if tokens[i] == '(' && tokens[i+2] == ')' && (tokens[i+1] == 'T' || tokens[i+1] == 'F') {
				tokens = append(append(append([]byte{}, tokens[:i]...), tokens[i+1]), tokens[i+3:]...)
				changed = true
				break
			}
		}
		if changed {
			continue
		}

		for i := 0; i+1 < len(tokens); i++ {
			a, b := tokens[i], tokens[i+1]
			if (a == 'T' || a == 'F') && (b == 'T' || b == 'F') {
				var r byte
				if a == 'T' && b == 'T' {
					r = 'T'
				} else {
					r = 'F'
				}
				tokens = append(append(append([]byte{}, tokens[:i]...), r), tokens[i+2:]...)
				changed = true
				break
			}
			if (a == 'T' || a == 'F') && b == '|' && i+2 < len(tokens) {
				c := tokens[i+2]
				if c == 'T' || c == 'F' {
					var r byte
					if a == 'T' || c == 'T' {
						r = 'T'
					} else {
						r = 'F'
					}
					tokens = append(append(append([]byte{}, tokens[:i]...), r), tokens[i+3:]...)
					changed = true
					break
				}
			}
		}
	}

	return len(tokens) == 1 && tokens[0] == 'T'
}

func matchTerm(t domain.FilterTerm, item *domain.FeedItem, now time.Time) bool {
	var result bool

	if t.IsNumeric {
		result = matchNumeric(t, item, now)
	} else if t.Op == domain.OpRegexMatch {
		re, err := regexp.Compile(t.Param)
		result = err == nil && re.MatchString(fieldValue(t.Field, item))
	} else {
		result = matchText(t, fieldValue(t.Field, item))
	}

	if t.Negate {
		return !result
	}
	return result
}

func matchNumeric(t domain.FilterTerm, item *domain.FeedItem, now time.Time) bool {
	var actual float64
	switch strings.ToLower(t.Field) {
	case "age":
		actual = now.Sub(item.Time).Seconds()
	case "size":
		actual = float64(item.Size)
	default:
		if v, err := strconv.ParseFloat(fieldValue(t.Field, item), 64); err == nil {
			actual = v
		}
	}

	switch t.Op {
	case domain.OpEquals:
		return actual == t.NumericValue
	case domain.OpLess:
		return actual < t.NumericValue
	case domain.OpLessEq:
		return actual <= t.NumericValue
	case domain.OpGreater:
		return actual > t.NumericValue
	case domain.OpGreaterEq:
		return actual >= t.NumericValue
	default:
		return false
	}
}

// matchText implements §4.10's word-split matching: a parameter wrapped in
// *...* or containing a wild-mask character is a glob/substring match,
// otherwise the target is split into words and the parameter must equal
// one of them.
func matchText(t domain.FilterTerm, target string) bool {
	param := t.Param

	if strings.ContainsAny(param, "*?") {
		return wildMatch(strings.ToLower(param), strings.ToLower(target))
	}

	words := wordSplitRe.Split(strings.ToLower(target), -1)
	needle := strings.ToLower(param)
	for _, w := range words {
		if w == needle {
			return true
		}
	}
	return false
}

// wildMatch implements a simple '*'/'?' glob matcher.
func wildMatch(pattern, s string) bool {
	return wildMatchAt(pattern, s, 0, 0)
}

func wildMatchAt(pattern, s string, pi, si int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			if pi == len(pattern)-1 {
				return true
			}
			for k := si; k <= len(s); k++ {
				if wildMatchAt(pattern, s, pi+1, k) {
					return true
				}
			}
			return false
		case '?':
			if si >= len(s) {
				return false
			}
			pi++
			si++
		default:
			if si >= len(s) || pattern[pi] != s[si] {
				return false
			}
			pi++
			si++
		}
	}
	return si == len(s)
}

func fieldValue(field string, item *domain.FeedItem) string {
	switch strings.ToLower(field) {
	case "title":
		return item.Title
	case "filename":
		return item.Filename
	case "category":
		return item.Category
	default:
		return item.Attrs[field]
	}
}

// applyBackreferences expands ${season} and ${episode} into the rule's
// string-valued options. ${N} numeric backreferences are not expanded:
// regex submatches are not collected, and ${N} passes through unchanged.
func applyBackreferences(rule *domain.FilterRule, item *domain.FeedItem) {
	season := strconv.Itoa(item.Season)
	episode := strconv.Itoa(item.Episode)

	expand := func(s string) string {
		s = strings.ReplaceAll(s, "${season}", season)
		s = strings.ReplaceAll(s, "${episode}", episode)
		return s
	}

	rule.Category = expand(rule.Category)
	rule.DupeKey = expand(rule.DupeKey)
	rule.AddDupeKey = expand(rule.AddDupeKey)
	rule.Series = expand(rule.Series)
}
