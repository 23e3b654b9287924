package providers

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// walkMarkup finds offer cards with the first candidate selector that
// matches and evaluates css and regex rules inside each card.
func walkMarkup(provider string, body []byte, cards []string, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, []error{&flight.ParseError{Provider: provider, Entry: PayloadEntry, Err: err}}
	}

	var found *goquery.Selection
	for _, sel := range cards {
		if s := doc.Find(sel); s.Length() > 0 {
			found = s
			break
		}
	}
	if found == nil {
		return nil, nil
	}

	css := m.Rules(mapping.KindCSS)
	regexRules := m.Rules(mapping.KindRegex)
	compiled := make(map[string]*regexp.Regexp, len(regexRules))
	for _, r := range regexRules {
		re, err := regexp.Compile(r.Expr)
		if err != nil {
			return nil, []error{&flight.ParseError{Provider: provider, Entry: PayloadEntry, Err: err}}
		}
		compiled[r.Expr] = re
	}

	var (
		out  []flight.RawOffer
		errs []error
	)
	found.Each(func(i int, card *goquery.Selection) {
		raw, err := walkCard(card, css, regexRules, compiled)
		if err != nil {
			errs = append(errs, &flight.ParseError{Provider: provider, Entry: i, Err: err})
			return
		}
		out = append(out, raw)
	})
	return out, errs
}

func walkCard(card *goquery.Selection, css, regexRules []mapping.Rule, compiled map[string]*regexp.Regexp) (raw flight.RawOffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	raw = flight.RawOffer{}
	for _, r := range css {
		sel := card.Find(r.Expr)
		if r.Index >= sel.Length() {
			continue
		}
		item := sel.Eq(r.Index)
		var v string
		if r.Attr != "" {
			v, _ = item.Attr(r.Attr)
		} else {
			v = item.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			raw[r.Key()] = v
		}
	}

	if len(regexRules) > 0 {
		text := cardText(card)
		if text == "" {
			return nil, errors.New("empty card")
		}
		for _, r := range regexRules {
			matches := compiled[r.Expr].FindAllStringSubmatch(text, -1)
			if r.Index >= len(matches) {
				continue
			}
			match := matches[r.Index]
			v := match[0]
			if len(match) > 1 {
				v = match[1]
			}
			if v = strings.TrimSpace(v); v != "" {
				raw[r.Key()] = v
			}
		}
	}
	return raw, nil
}

// cardText joins the card's text nodes in document order, separated by
// spaces so adjacent values stay apart.
func cardText(card *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			switch goquery.NodeName(n) {
			case "#text":
				if t := strings.TrimSpace(n.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style":
			default:
				walk(n)
			}
		})
	}
	walk(card)
	return strings.Join(parts, " ")
}
