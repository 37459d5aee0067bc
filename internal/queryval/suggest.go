package queryval

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dmtorres/gridsync/internal/registry"
)

// Suggestion is a heuristic query proposal built from free text. It is
// a starting point for a human (or agent) to review — never safe to
// execute unreviewed, which RequiresConfirmation makes explicit.
type Suggestion struct {
	Query                Query    `json:"query"`
	MatchedFields        []string `json:"matched_fields,omitempty"`
	Note                 string   `json:"note,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

// recencyWords trigger a descending sort on the first datetime field.
var recencyWords = map[string]bool{
	"latest": true,
	"recent": true,
	"newest": true,
}

// minTokenLen guards the bidirectional substring match against very
// short tokens ("a", "of") matching half the schema.
const minTokenLen = 3

// SuggestQuery proposes a query for a table from a natural-language
// description. Best effort: it never fails — a missing schema or a
// description that matches nothing yields an empty, annotated
// suggestion.
func SuggestQuery(store SchemaReader, tableID, description string) Suggestion {
	s := Suggestion{RequiresConfirmation: true}

	schema, err := store.GetTableSchema(tableID)
	if err != nil {
		s.Note = "table schema is not cached locally; sync the application first"
		return s
	}

	tokens := tokenize(description)

	// Iterate fields in sorted order so the same description always
	// produces the same suggestion.
	fields := make([]string, 0, len(schema))
	for name := range schema {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, name := range fields {
		token, ok := matchToken(name, tokens)
		if !ok {
			continue
		}
		s.MatchedFields = append(s.MatchedFields, name)

		switch schema[name].Type {
		case registry.FieldString, registry.FieldFormula, registry.FieldJSON:
			if s.Query.Contains == nil {
				s.Query.Contains = make(map[string]string)
			}
			s.Query.Contains[name] = token
		case registry.FieldNumber, registry.FieldAuto:
			if s.Query.Range == nil {
				s.Query.Range = make(map[string]NumericRange)
			}
			s.Query.Range[name] = NumericRange{}
		case registry.FieldBoolean:
			if s.Query.Equal == nil {
				s.Query.Equal = make(map[string]any)
			}
			s.Query.Equal[name] = true
		case registry.FieldDatetime:
			if s.Query.Range == nil {
				s.Query.Range = make(map[string]NumericRange)
			}
			s.Query.Range[name] = NumericRange{}
		}
	}

	if hasRecencyWord(tokens) {
		field := firstDatetimeField(fields, schema)
		if field == "" {
			field = "createdAt"
		}
		s.Query.Sort = map[string]SortDirection{field: SortDescending}
	}

	if s.Query.predicateCount() == 0 && s.Query.Sort == nil {
		s.Note = "no schema fields matched the description"
	}
	return s
}

// tokenize lowercases and splits on every non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchToken finds the first token that is a substring of the field
// name or vice versa. Short tokens are skipped entirely.
func matchToken(field string, tokens []string) (string, bool) {
	lower := strings.ToLower(field)
	for _, tok := range tokens {
		if len(tok) < minTokenLen {
			continue
		}
		if strings.Contains(lower, tok) || strings.Contains(tok, lower) {
			return tok, true
		}
	}
	return "", false
}

func hasRecencyWord(tokens []string) bool {
	for _, tok := range tokens {
		if recencyWords[tok] {
			return true
		}
	}
	return false
}

func firstDatetimeField(sortedFields []string, schema registry.Schema) string {
	for _, name := range sortedFields {
		if schema[name].Type == registry.FieldDatetime {
			return name
		}
	}
	return ""
}
