package providers

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// PayloadEntry marks a ParseError that concerns the whole payload rather
// than one entry.
const PayloadEntry = -1

// jsonLayout says where offers and their legs live in a JSON payload.
type jsonLayout struct {
	// Entries are candidate paths to the offer array; the first that exists wins.
	Entries []string
	// Legs is evaluated inside an entry; empty means the entry is the leg.
	Legs string
}

// walkJSON emits one RawOffer per leg. Path rules scoped to the entry read
// the enclosing offer, so legs inherit its price.
func walkJSON(provider string, body []byte, layout jsonLayout, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	if !gjson.ValidBytes(body) {
		return nil, []error{&flight.ParseError{Provider: provider, Entry: PayloadEntry, Err: errors.New("invalid json")}}
	}
	doc := gjson.ParseBytes(body)

	var entries gjson.Result
	for _, p := range layout.Entries {
		if r := doc.Get(p); r.Exists() {
			entries = r
			break
		}
	}
	if !entries.Exists() {
		return nil, nil
	}
	if !entries.IsArray() {
		return nil, []error{&flight.ParseError{Provider: provider, Entry: PayloadEntry, Err: errors.New("offers are not a list")}}
	}

	rules := m.Rules(mapping.KindPath)
	var (
		out  []flight.RawOffer
		errs []error
	)
	for i, entry := range entries.Array() {
		raws, err := walkEntry(entry, layout.Legs, rules)
		if err != nil {
			errs = append(errs, &flight.ParseError{Provider: provider, Entry: i, Err: err})
			continue
		}
		out = append(out, raws...)
	}
	return out, errs
}

func walkEntry(entry gjson.Result, legsPath string, rules []mapping.Rule) (out []flight.RawOffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if !entry.IsObject() {
		return nil, fmt.Errorf("entry is %s, want object", entry.Type)
	}

	legs := []gjson.Result{entry}
	if legsPath != "" {
		l := entry.Get(legsPath)
		if !l.IsArray() || len(l.Array()) == 0 {
			return nil, errors.New("no legs")
		}
		legs = l.Array()
	}

	for _, leg := range legs {
		raw := flight.RawOffer{}
		for _, r := range rules {
			src := leg
			if r.Scope == mapping.ScopeEntry {
				src = entry
			}
			if v := src.Get(r.Expr); v.Exists() && v.Type != gjson.Null {
				raw[r.Key()] = v.Value()
			}
		}
		out = append(out, raw)
	}
	return out, nil
}
