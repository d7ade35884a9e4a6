package domain

// RuleCommand is the directive a filter rule opens with.
type RuleCommand int

const (
	RuleComment RuleCommand = iota
	RuleAccept
	RuleReject
	RuleRequire
	RuleOptionsOnly
)

// FilterRule is one "%"-separated clause of a feed filter expression: a
// command, an ordered list of terms, and options applied on match.
type FilterRule struct {
	Command RuleCommand
	Terms   []FilterTerm

	Category      string
	Pause         bool
	Priority      int
	HasPriority   bool
	AddPriority   int
	DupeKey       string
	AddDupeKey    string
	DupeScore     int
	HasDupeScore  bool
	AddDupeScore  int
	DupeMode      DupeMode
	RageID        string
	TVDBID        string
	TVMazeID      string
	Series        string
}

// TermOp is the comparison/grouping operator of a filter term.
type TermOp int

const (
	OpTextMatch TermOp = iota
	OpRegexMatch
	OpEquals
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpOpenBrace
	OpCloseBrace
	OpOr
)

// FilterTerm is the smallest unit of the filter DSL: an optional sign and
// field, an operator, and a string or numeric parameter.
type FilterTerm struct {
	Negate bool
	Field  string // defaults to "title"
	Op     TermOp
	Param  string

	// NumericValue is populated for size/age/numeric comparisons once the
	// parser has resolved suffixes (K/KB/M/MB/G/GB, m/h/d).
	NumericValue float64
	IsNumeric    bool
}
