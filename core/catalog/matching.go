// Package catalog - Corridor matching
package catalog

import (
	"sort"
	"strings"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

// Endpoint scores. An exact city beats a partial city, which beats any
// country-only match. City and country scores add up per endpoint.
const (
	scoreExactCity      = 4
	scorePartialCity    = 3
	scoreExactCountry   = 2
	scorePartialCountry = 1
)

// CorridorQuery selects a rate card
type CorridorQuery struct {
	Mode        types.Mode
	Basis       types.Basis
	Origin      string
	Destination string
}

// Match is the selected card
type Match struct {
	// Card is the matched rate card
	Card *types.RateCard

	// OwnerBasePriced is set when the card came from the platform owner
	OwnerBasePriced bool

	// Score is the combined origin and destination score
	Score int
}

// FindCard returns the single best active card for the query.
// The tenant's own cards are searched first; a reseller falls back to the
// owner's cards only when none of its own match.
func (s *Snapshot) FindCard(q CorridorQuery) (*Match, error) {
	if strings.TrimSpace(q.Origin) == "" || strings.TrimSpace(q.Destination) == "" {
		return nil, errors.Input("origin and destination are required")
	}

	if card, score := BestCard(s.OwnCards, q); card != nil {
		return &Match{Card: card, Score: score}, nil
	}
	if card, score := BestCard(s.OwnerCards, q); card != nil {
		return &Match{Card: card, Score: score, OwnerBasePriced: true}, nil
	}

	return nil, errors.NoCorridor(string(q.Mode), q.Origin, q.Destination, s.Corridors(q.Mode))
}

// BestCard returns the highest-scoring eligible card. cards must already be
// in creation order; the first of equally scored cards wins.
func BestCard(cards []*types.RateCard, q CorridorQuery) (*types.RateCard, int) {
	var best *types.RateCard
	bestScore := 0
	for _, card := range cards {
		if !card.Active || card.Mode != q.Mode || card.Basis != q.Basis {
			continue
		}
		o := LocationScore(card.Origin, q.Origin)
		if o == 0 {
			continue
		}
		d := LocationScore(card.Destination, q.Destination)
		if d == 0 {
			continue
		}
		if o+d > bestScore {
			best, bestScore = card, o+d
		}
	}
	return best, bestScore
}

// LocationScore scores a free-text token against a stored location.
// Zero means no match.
func LocationScore(loc types.Location, token string) int {
	return fieldScore(loc.City, token, scoreExactCity, scorePartialCity) +
		fieldScore(loc.Country, token, scoreExactCountry, scorePartialCountry)
}

// fieldScore compares case-insensitively; a substring in either direction
// is a partial match. Empty values never match.
func fieldScore(stored, token string, exact, partial int) int {
	stored = strings.ToLower(strings.TrimSpace(stored))
	token = strings.ToLower(strings.TrimSpace(token))
	switch {
	case stored == "" || token == "":
		return 0
	case stored == token:
		return exact
	case strings.Contains(stored, token) || strings.Contains(token, stored):
		return partial
	default:
		return 0
	}
}

// Corridors lists the active corridors the tenant can quote for a mode
func (s *Snapshot) Corridors(mode types.Mode) []string {
	seen := map[string]bool{}
	var out []string
	for _, set := range [][]*types.RateCard{s.OwnCards, s.OwnerCards} {
		for _, card := range set {
			if !card.Active || card.Mode != mode {
				continue
			}
			c := card.Corridor()
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Cards lists the active cards for a mode, own cards first
func (s *Snapshot) Cards(mode types.Mode) []Match {
	var out []Match
	for i, set := range [][]*types.RateCard{s.OwnCards, s.OwnerCards} {
		for _, card := range set {
			if card.Active && (mode == "" || card.Mode == mode) {
				out = append(out, Match{Card: card, OwnerBasePriced: i == 1})
			}
		}
	}
	return out
}
