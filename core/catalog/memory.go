// Package catalog - In-memory copy-on-write store
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"freightquote/core/determinism"
	"freightquote/core/types"
	"freightquote/internal/errors"
)

// state is never modified once published
type state struct {
	tenants map[types.TenantID]*types.TenantPricingContext
	cards   map[string]*types.RateCard
	rules   map[string]*types.SurchargeRule
	addons  map[string]*types.Addon
	plans   map[string]*types.Plan
	seq     int64

	// snapshots caches built snapshots per tenant for this state
	snapshots sync.Map
}

func (s *state) clone() *state {
	return &state{
		tenants: cloneMap(s.tenants),
		cards:   cloneMap(s.cards),
		rules:   cloneMap(s.rules),
		addons:  cloneMap(s.addons),
		plans:   cloneMap(s.plans),
		seq:     s.seq,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryStore keeps tenant configuration in memory.
// Readers load the current state without locking; writers serialise on a
// mutex, copy the state, and publish the copy with one atomic swap.
type MemoryStore struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	s.current.Store((&state{}).clone())
	return s
}

// SetClock overrides the clock used to stamp new rate cards
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// update applies fn to a private copy and publishes it if fn succeeds
func (s *MemoryStore) update(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

// UpsertTenant creates or replaces a tenant
func (s *MemoryStore) UpsertTenant(ctx context.Context, tenant *types.TenantPricingContext) error {
	if err := tenant.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	cp := *tenant
	cp.ResellPrices = cloneMap(tenant.ResellPrices)
	return s.update(func(st *state) error {
		st.tenants[cp.ID] = &cp
		return nil
	})
}

// UpsertRateCard creates or replaces a rate card.
// Replacing a card keeps its original creation time and sequence.
func (s *MemoryStore) UpsertRateCard(ctx context.Context, card *types.RateCard) error {
	cp := card.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if err := cp.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	err := s.update(func(st *state) error {
		if _, ok := st.tenants[cp.TenantID]; !ok {
			return errors.NotFound("tenant", string(cp.TenantID))
		}
		if prev, ok := st.cards[cp.ID]; ok {
			if prev.TenantID != cp.TenantID {
				return errors.Input("rate card " + cp.ID + " belongs to another tenant")
			}
			cp.Seq = prev.Seq
			if cp.CreatedAt.IsZero() {
				cp.CreatedAt = prev.CreatedAt
			}
		} else {
			st.seq++
			cp.Seq = st.seq
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = s.now().UTC()
		}
		st.cards[cp.ID] = cp
		return nil
	})
	if err == nil {
		card.ID = cp.ID
	}
	return err
}

// UpsertSurchargeRule creates or replaces a surcharge rule
func (s *MemoryStore) UpsertSurchargeRule(ctx context.Context, rule *types.SurchargeRule) error {
	cp := *rule
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if err := cp.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	err := s.update(func(st *state) error {
		if _, ok := st.tenants[cp.TenantID]; !ok {
			return errors.NotFound("tenant", string(cp.TenantID))
		}
		if prev, ok := st.rules[cp.ID]; ok && prev.TenantID != cp.TenantID {
			return errors.Input("surcharge rule " + cp.ID + " belongs to another tenant")
		}
		st.rules[cp.ID] = &cp
		return nil
	})
	if err == nil {
		rule.ID = cp.ID
	}
	return err
}

// UpsertAddon creates or replaces an add-on
func (s *MemoryStore) UpsertAddon(ctx context.Context, addon *types.Addon) error {
	cp := *addon
	if err := cp.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	return s.update(func(st *state) error {
		if _, ok := st.tenants[cp.TenantID]; !ok {
			return errors.NotFound("tenant", string(cp.TenantID))
		}
		st.addons[addonKey(cp.TenantID, cp.ID)] = &cp
		return nil
	})
}

// UpsertPlan creates or replaces a plan
func (s *MemoryStore) UpsertPlan(ctx context.Context, plan *types.Plan) error {
	cp := *plan
	if err := cp.Validate(); err != nil {
		return errors.Input(err.Error())
	}
	return s.update(func(st *state) error {
		if _, ok := st.tenants[cp.OwnerTenantID]; !ok {
			return errors.NotFound("tenant", string(cp.OwnerTenantID))
		}
		if prev, ok := st.plans[cp.ID]; ok && prev.OwnerTenantID != cp.OwnerTenantID {
			return errors.Input("plan " + cp.ID + " belongs to another tenant")
		}
		st.plans[cp.ID] = &cp
		return nil
	})
}

// addon IDs are only unique within a tenant
func addonKey(tenant types.TenantID, id string) string {
	return string(tenant) + "/" + id
}

// Snapshot returns the tenant's configuration as of the call.
// Snapshots are immutable, so one is built per tenant per published state.
func (s *MemoryStore) Snapshot(ctx context.Context, tenantID types.TenantID) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := s.current.Load()
	if cached, ok := st.snapshots.Load(tenantID); ok {
		return cached.(*Snapshot), nil
	}
	snap, err := st.snapshot(tenantID)
	if err != nil {
		return nil, err
	}
	actual, _ := st.snapshots.LoadOrStore(tenantID, snap)
	return actual.(*Snapshot), nil
}

func (st *state) snapshot(tenantID types.TenantID) (*Snapshot, error) {
	tenant, ok := st.tenants[tenantID]
	if !ok {
		return nil, errors.NotFound("tenant", string(tenantID))
	}

	var owner *types.TenantPricingContext
	if tenant.IsReseller() {
		owner, ok = st.tenants[tenant.ParentTenantID]
		if !ok {
			return nil, errors.Config("tenant "+string(tenantID)+" resells from unknown owner "+string(tenant.ParentTenantID), nil)
		}
	}

	var own, ownerCards []*types.RateCard
	for _, c := range st.cards {
		switch {
		case c.TenantID == tenantID:
			own = append(own, c)
		case owner != nil && c.TenantID == owner.ID:
			ownerCards = append(ownerCards, c)
		}
	}

	var rules []*types.SurchargeRule
	for _, r := range st.rules {
		if r.TenantID == tenantID {
			rules = append(rules, r)
		}
	}

	addons := map[string]*types.Addon{}
	for _, a := range st.addons {
		if a.TenantID == tenantID {
			addons[a.ID] = a
		}
	}
	if owner != nil {
		for _, a := range st.addons {
			if _, shadowed := addons[a.ID]; a.TenantID == owner.ID && !shadowed {
				addons[a.ID] = a
			}
		}
	}

	planOwner := tenantID
	if owner != nil {
		planOwner = owner.ID
	}
	plans := map[string]*types.Plan{}
	for _, p := range st.plans {
		if p.OwnerTenantID == planOwner {
			plans[p.ID] = p
		}
	}

	return NewSnapshot(tenant, owner, own, ownerCards, rules, addons, plans)
}

// Tenants returns every tenant ID in sorted order
func (s *MemoryStore) Tenants() []types.TenantID {
	st := s.current.Load()
	ids := make([]types.TenantID, 0, len(st.tenants))
	for id := range st.tenants {
		ids = append(ids, id)
	}
	determinism.SortSlice(ids, func(a, b types.TenantID) bool { return a < b })
	return ids
}
