package exam

import (
	"strings"

	"github.com/prepgrid/gradecore/internal/fault"
)

// Kind is the closed question-kind enum. Incoming question sets use a
// variety of aliases for the same kinds; ParseKind normalizes them once at
// ingestion so evaluation never string-matches loose type names.
type Kind string

const (
	SingleChoice      Kind = "single_choice"
	MultiChoiceCredit Kind = "multi_choice_credit"
	Numeric           Kind = "numeric"
	Integer           Kind = "integer"
	Text              Kind = "text"
)

var kindAliases = map[string]Kind{
	"single_choice":       SingleChoice,
	"singlechoice":        SingleChoice,
	"single":              SingleChoice,
	"scq":                 SingleChoice,
	"mcq":                 SingleChoice,
	"mcq_single":          SingleChoice,
	"true_false":          SingleChoice,
	"multi_choice_credit": MultiChoiceCredit,
	"multi_choice":        MultiChoiceCredit,
	"multichoice":         MultiChoiceCredit,
	"multiple":            MultiChoiceCredit,
	"mcma":                MultiChoiceCredit,
	"mcq_multi":           MultiChoiceCredit,
	"msq":                 MultiChoiceCredit,
	"numeric":             Numeric,
	"numerical":           Numeric,
	"number":              Numeric,
	"decimal":             Numeric,
	"integer":             Integer,
	"int":                 Integer,
	"text":                Text,
	"short_word":          Text,
	"fill":                Text,
	"fill_blank":          Text,
}

// ParseKind resolves a raw question-type token to a Kind. Unknown tokens are
// a validation fault; they are rejected at ingestion, not at evaluation.
func ParseKind(raw string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fault.New(fault.Validation, "unknown question kind %q", raw)
	}
	return k, nil
}

// Valid reports whether k is one of the closed enum values.
func (k Kind) Valid() bool {
	switch k {
	case SingleChoice, MultiChoiceCredit, Numeric, Integer, Text:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }
