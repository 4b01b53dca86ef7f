// Package catalog - Tenant pricing configuration
// Holds rate cards, surcharge rules, add-ons and plans per tenant and hands
// out immutable snapshots. A calculation takes one snapshot at entry and
// never reads live configuration afterwards.
package catalog

import (
	"context"

	"freightquote/core/determinism"
	"freightquote/core/types"
)

// Reader hands out per-tenant configuration snapshots
type Reader interface {
	// Snapshot returns the tenant's configuration as of the call
	Snapshot(ctx context.Context, tenant types.TenantID) (*Snapshot, error)
}

// Store is the tenant configuration repository
type Store interface {
	Reader

	UpsertTenant(ctx context.Context, tenant *types.TenantPricingContext) error
	UpsertRateCard(ctx context.Context, card *types.RateCard) error
	UpsertSurchargeRule(ctx context.Context, rule *types.SurchargeRule) error
	UpsertAddon(ctx context.Context, addon *types.Addon) error
	UpsertPlan(ctx context.Context, plan *types.Plan) error
}

// Snapshot is an immutable view of one tenant's pricing configuration.
// Nothing reachable from a Snapshot is modified after it is built.
type Snapshot struct {
	// Tenant is the quoting tenant
	Tenant *types.TenantPricingContext `json:"tenant"`

	// Owner is the platform owner for resellers, nil otherwise
	Owner *types.TenantPricingContext `json:"owner,omitempty"`

	// OwnCards are the tenant's rate cards in creation order
	OwnCards []*types.RateCard `json:"own_cards"`

	// OwnerCards are the owner's rate cards in creation order
	OwnerCards []*types.RateCard `json:"owner_cards,omitempty"`

	// Surcharges are the tenant's rules
	Surcharges []*types.SurchargeRule `json:"surcharges"`

	// Addons are the tenant's add-ons, then any owner add-on it does not shadow
	Addons map[string]*types.Addon `json:"addons"`

	// Plans are the plans visible to the tenant (the owner's for resellers)
	Plans map[string]*types.Plan `json:"plans"`

	// Version is the content hash of everything above
	Version string `json:"-"`
}

// NewSnapshot orders its inputs and stamps a content version
func NewSnapshot(tenant, owner *types.TenantPricingContext, own, ownerCards []*types.RateCard,
	rules []*types.SurchargeRule, addons map[string]*types.Addon, plans map[string]*types.Plan) (*Snapshot, error) {
	s := &Snapshot{
		Tenant:     tenant,
		Owner:      owner,
		OwnCards:   own,
		OwnerCards: ownerCards,
		Surcharges: rules,
		Addons:     addons,
		Plans:      plans,
	}
	if s.Addons == nil {
		s.Addons = map[string]*types.Addon{}
	}
	if s.Plans == nil {
		s.Plans = map[string]*types.Plan{}
	}
	SortCards(s.OwnCards)
	SortCards(s.OwnerCards)
	determinism.SortSlice(s.Surcharges, func(a, b *types.SurchargeRule) bool {
		return a.ID < b.ID
	})

	hash, err := determinism.HashJSON(s)
	if err != nil {
		return nil, err
	}
	s.Version = hash.Short()
	return s, nil
}

// SortCards orders cards by creation time, then sequence, then ID
func SortCards(cards []*types.RateCard) {
	determinism.SortSlice(cards, cardBefore)
}

func cardBefore(a, b *types.RateCard) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// Addon returns an add-on by ID
func (s *Snapshot) Addon(id string) (*types.Addon, bool) {
	a, ok := s.Addons[id]
	return a, ok
}

// Plan returns a plan by ID
func (s *Snapshot) Plan(id string) (*types.Plan, bool) {
	p, ok := s.Plans[id]
	return p, ok
}

// RulesFor returns the active surcharge rules that apply to a card
func (s *Snapshot) RulesFor(card *types.RateCard) []*types.SurchargeRule {
	var out []*types.SurchargeRule
	for _, r := range s.Surcharges {
		if r.AppliesTo(card) {
			out = append(out, r)
		}
	}
	return out
}
