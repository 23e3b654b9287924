package mapping

import (
	"strings"

	"github.com/you/go-flight-harvester/internal/flight"
)

// Lookup supplies values for the rule kinds that are not stored in a RawOffer.
type Lookup interface {
	ContextValue(name string) string
}

// Resolve walks the field's rule chain and returns the first non-empty value.
func (m FieldMapping) Resolve(field string, raw flight.RawOffer, lk Lookup) (any, bool) {
	spec, ok := m[field]
	if !ok {
		return nil, false
	}
	for _, r := range spec.Rules {
		var v any
		switch r.Kind {
		case KindConst:
			v = r.Expr
		case KindContext:
			if lk != nil {
				v = lk.ContextValue(r.Expr)
			}
		default:
			v = raw[r.Key()]
		}
		if !Empty(v) {
			return v, true
		}
	}
	return nil, false
}

// Empty reports whether v carries no usable value.
func Empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
