// Package routes builds the ordered set of routes a harvest iterates.
package routes

import (
	"strings"

	"github.com/you/go-flight-harvester/internal/flight"
)

// Cartesian pairs every airport with every other one, in input order.
// Codes are upper-cased and repeated codes are ignored.
func Cartesian(airports []string) []flight.Route {
	codes := make([]string, 0, len(airports))
	seen := make(map[string]bool, len(airports))
	for _, a := range airports {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		codes = append(codes, a)
	}

	out := make([]flight.Route, 0, len(codes)*(len(codes)-1))
	for _, o := range codes {
		for _, d := range codes {
			if o != d {
				out = append(out, flight.Route{Origin: o, Destination: d})
			}
		}
	}
	return out
}

// Parse reads "ORIGIN-DEST" entries, dropping duplicates.
func Parse(specs []string) ([]flight.Route, error) {
	var out []flight.Route
	seen := make(map[flight.Route]bool, len(specs))
	for _, s := range specs {
		r, err := flight.ParseRoute(s)
		if err != nil {
			return nil, err
		}
		if r.Origin == r.Destination || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}
