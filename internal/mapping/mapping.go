// Package mapping declares how each provider's raw values map onto canonical
// offer fields. A FieldMapping is data: adapters use it to know which
// expressions to evaluate, the normalizer uses it to pick the first non-empty
// value of every field's rule chain.
package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type SemanticType string

const (
	Text     SemanticType = "text"
	Price    SemanticType = "price"
	DateTime SemanticType = "datetime"
	Duration SemanticType = "duration"
	Stops    SemanticType = "stops"
)

// RuleKind tags the Rule variant.
type RuleKind string

const (
	// KindPath is a gjson path into a JSON entry.
	KindPath RuleKind = "path"
	// KindCSS is a selector evaluated inside one markup card.
	KindCSS RuleKind = "css"
	// KindRegex matches against the text of one markup card; group 1 wins.
	KindRegex RuleKind = "regex"
	// KindConst is a literal value.
	KindConst RuleKind = "const"
	// KindContext reads the search context: origin, destination or date.
	KindContext RuleKind = "context"
)

// ScopeEntry evaluates a path rule against the enclosing entry instead of the leg.
const ScopeEntry = "entry"

type Rule struct {
	Kind  RuleKind `mapstructure:"kind" json:"kind"`
	Expr  string   `mapstructure:"expr" json:"expr"`
	Index int      `mapstructure:"index" json:"index,omitempty"`
	Attr  string   `mapstructure:"attr" json:"attr,omitempty"`
	Scope string   `mapstructure:"scope" json:"scope,omitempty"`
}

// Key is the RawOffer key under which an adapter stores this rule's value.
func (r Rule) Key() string {
	var b strings.Builder
	b.WriteString(string(r.Kind))
	b.WriteByte(':')
	if r.Scope != "" {
		b.WriteString(r.Scope)
		b.WriteByte(':')
	}
	b.WriteString(r.Expr)
	if r.Index != 0 {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(r.Index))
	}
	if r.Attr != "" {
		b.WriteByte('@')
		b.WriteString(r.Attr)
	}
	return b.String()
}

func Path(expr string) Rule      { return Rule{Kind: KindPath, Expr: expr} }
func EntryPath(expr string) Rule { return Rule{Kind: KindPath, Expr: expr, Scope: ScopeEntry} }
func CSS(expr string) Rule       { return Rule{Kind: KindCSS, Expr: expr} }
func CSSAt(expr string, i int) Rule {
	return Rule{Kind: KindCSS, Expr: expr, Index: i}
}
func Regex(expr string) Rule         { return Rule{Kind: KindRegex, Expr: expr} }
func RegexAt(expr string, i int) Rule { return Rule{Kind: KindRegex, Expr: expr, Index: i} }
func Const(v string) Rule            { return Rule{Kind: KindConst, Expr: v} }
func Context(name string) Rule       { return Rule{Kind: KindContext, Expr: name} }

// FieldSpec is the declaration of one canonical field.
type FieldSpec struct {
	Type     SemanticType `mapstructure:"type" json:"type"`
	Required bool         `mapstructure:"required" json:"required"`
	// Unit applies to numeric durations: "minutes" (default) or "seconds".
	Unit  string `mapstructure:"unit" json:"unit,omitempty"`
	Rules []Rule `mapstructure:"rules" json:"rules"`
}

// FieldMapping maps canonical field names to their declarations.
type FieldMapping map[string]FieldSpec

// Canonical field names understood by the normalizer.
const (
	FieldFlightCode       = "flight_code"
	FieldAirlineCode      = "airline_code"
	FieldFlightNumber     = "flight_number"
	FieldAirline          = "airline"
	FieldDepartureAirport = "departure_airport"
	FieldArrivalAirport   = "arrival_airport"
	FieldDepartureTime    = "departure_time"
	FieldArrivalTime      = "arrival_time"
	FieldDuration         = "duration"
	FieldPrice            = "price"
	FieldCurrency         = "currency"
	FieldStops            = "stops"
	FieldAircraftType     = "aircraft_type"
	FieldBaggageInfo      = "baggage_info"
	FieldMealInfo         = "meal_info"
	FieldSeatClass        = "seat_class"
	FieldBookingURL       = "booking_url"
)

var fieldTypes = map[string]SemanticType{
	FieldFlightCode:       Text,
	FieldAirlineCode:      Text,
	FieldFlightNumber:     Text,
	FieldAirline:          Text,
	FieldDepartureAirport: Text,
	FieldArrivalAirport:   Text,
	FieldDepartureTime:    DateTime,
	FieldArrivalTime:      DateTime,
	FieldDuration:         Duration,
	FieldPrice:            Price,
	FieldCurrency:         Text,
	FieldStops:            Stops,
	FieldAircraftType:     Text,
	FieldBaggageInfo:      Text,
	FieldMealInfo:         Text,
	FieldSeatClass:        Text,
	FieldBookingURL:       Text,
}

// Rules returns every rule of kind k across the mapping, deduplicated by Key.
func (m FieldMapping) Rules(k RuleKind) []Rule {
	seen := make(map[string]struct{})
	var out []Rule
	for _, spec := range m {
		for _, r := range spec.Rules {
			if r.Kind != k {
				continue
			}
			if _, ok := seen[r.Key()]; ok {
				continue
			}
			seen[r.Key()] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Validate checks field names, types, rule kinds and regex syntax.
func (m FieldMapping) Validate() error {
	for name, spec := range m {
		want, ok := fieldTypes[name]
		if !ok {
			return fmt.Errorf("unknown field %q", name)
		}
		if spec.Type == "" {
			spec.Type = want
		}
		if spec.Type != want {
			return fmt.Errorf("field %q: type %q, want %q", name, spec.Type, want)
		}
		if spec.Unit != "" && spec.Unit != "minutes" && spec.Unit != "seconds" {
			return fmt.Errorf("field %q: unknown unit %q", name, spec.Unit)
		}
		if len(spec.Rules) == 0 {
			return fmt.Errorf("field %q: no rules", name)
		}
		for _, r := range spec.Rules {
			switch r.Kind {
			case KindPath, KindCSS, KindConst:
			case KindRegex:
				if _, err := regexp.Compile(r.Expr); err != nil {
					return fmt.Errorf("field %q: %w", name, err)
				}
			case KindContext:
				switch r.Expr {
				case "origin", "destination", "date":
				default:
					return fmt.Errorf("field %q: unknown context %q", name, r.Expr)
				}
			default:
				return fmt.Errorf("field %q: unknown rule kind %q", name, r.Kind)
			}
			if r.Expr == "" && r.Kind != KindConst {
				return fmt.Errorf("field %q: empty %s rule", name, r.Kind)
			}
		}
	}
	return nil
}

// WithDefaults fills missing semantic types from the canonical field table.
func (m FieldMapping) WithDefaults() FieldMapping {
	out := make(FieldMapping, len(m))
	for name, spec := range m {
		if spec.Type == "" {
			spec.Type = fieldTypes[name]
		}
		out[name] = spec
	}
	return out
}

// Merge overlays o onto m field by field.
func (m FieldMapping) Merge(o FieldMapping) FieldMapping {
	out := make(FieldMapping, len(m)+len(o))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}
