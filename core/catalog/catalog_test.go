package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"freightquote/core/types"
	"freightquote/internal/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func upper(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func airCard(id string, tenant types.TenantID, origin, destination types.Location) *types.RateCard {
	return &types.RateCard{
		ID:          id,
		TenantID:    tenant,
		Mode:        types.ModeAir,
		Basis:       types.BasisPerKg,
		Origin:      origin,
		Destination: destination,
		Currency:    types.CurrencyXOF,
		Tiers: []types.RateTier{
			{Lower: dec("0"), Upper: upper("10"), UnitPrice: dec("1000")},
			{Lower: dec("10"), UnitPrice: dec("800")},
		},
		MinimumCharge: dec("5000"),
		FuelSurcharge: dec("0.10"),
		Active:        true,
	}
}

func newStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	ctx := context.Background()
	for _, tenant := range []*types.TenantPricingContext{
		{ID: "owner"},
		{ID: "acme", ParentTenantID: "owner", Margin: types.PercentMargin{Fraction: dec("0.1")}},
	} {
		if err := s.UpsertTenant(ctx, tenant); err != nil {
			t.Fatalf("UpsertTenant(%s): %v", tenant.ID, err)
		}
	}
	return s
}

func mustUpsert(t *testing.T, s *MemoryStore, card *types.RateCard) {
	t.Helper()
	if err := s.UpsertRateCard(context.Background(), card); err != nil {
		t.Fatalf("UpsertRateCard(%s): %v", card.ID, err)
	}
}

func TestLocationScore(t *testing.T) {
	loc := types.Location{Country: "China", City: "Guangzhou"}

	tests := []struct {
		token string
		want  int
	}{
		{"Guangzhou", scoreExactCity},
		{"guangzhou", scoreExactCity},
		{"Guangzhou Baiyun", scorePartialCity},
		{"China", scoreExactCountry},
		{"Guangzhou, China", scorePartialCity + scorePartialCountry},
		{"chin", scorePartialCountry},
		{"Lagos", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := LocationScore(loc, tt.token); got != tt.want {
				t.Errorf("LocationScore(%q) = %d, want %d", tt.token, got, tt.want)
			}
		})
	}
}

func TestLocationScoreEmptyCityNeverMatches(t *testing.T) {
	loc := types.Location{Country: "Nigeria"}
	if got := LocationScore(loc, "Lagos"); got != 0 {
		t.Errorf("expected no match, got %d", got)
	}
}

func TestFindCardPrefersCityOverCountry(t *testing.T) {
	s := newStore(t)
	mustUpsert(t, s, airCard("country-only", "owner",
		types.Location{Country: "China"}, types.Location{Country: "Ivory Coast"}))
	mustUpsert(t, s, airCard("city", "owner",
		types.Location{Country: "China", City: "Guangzhou"}, types.Location{Country: "Ivory Coast", City: "Abidjan"}))

	snap, err := s.Snapshot(context.Background(), "owner")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	m, err := snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "Guangzhou", Destination: "Abidjan"})
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if m.Card.ID != "city" {
		t.Errorf("expected city card, got %s", m.Card.ID)
	}

	m, err = snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "China", Destination: "Ivory Coast"})
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if m.Card.ID != "country-only" {
		t.Errorf("expected earliest country card on a tie, got %s", m.Card.ID)
	}
}

func TestFindCardTieBreaksByCreationOrder(t *testing.T) {
	s := newStore(t)
	// IDs sort opposite to creation order
	mustUpsert(t, s, airCard("zz-first", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))
	mustUpsert(t, s, airCard("aa-second", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))

	for i := 0; i < 20; i++ {
		snap, err := s.Snapshot(context.Background(), "owner")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		m, err := snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "china", Destination: "GHANA"})
		if err != nil {
			t.Fatalf("FindCard: %v", err)
		}
		if m.Card.ID != "zz-first" {
			t.Fatalf("iteration %d: expected zz-first, got %s", i, m.Card.ID)
		}
	}
}

func TestFindCardSkipsInactiveAndOtherModes(t *testing.T) {
	s := newStore(t)
	inactive := airCard("inactive", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	inactive.Active = false
	mustUpsert(t, s, inactive)

	sea := airCard("sea", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	sea.Mode = types.ModeSea
	mustUpsert(t, s, sea)

	snap, _ := s.Snapshot(context.Background(), "owner")
	_, err := snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "China", Destination: "Ghana"})
	if !errors.IsType(err, errors.TypeNoCorridor) {
		t.Fatalf("expected NO_CORRIDOR, got %v", err)
	}
}

func TestNoCorridorListsAvailableCorridors(t *testing.T) {
	s := newStore(t)
	mustUpsert(t, s, airCard("gz-abj", "owner",
		types.Location{Country: "China", City: "Guangzhou"}, types.Location{Country: "Ivory Coast", City: "Abidjan"}))
	mustUpsert(t, s, airCard("dxb-acc", "owner",
		types.Location{Country: "UAE", City: "Dubai"}, types.Location{Country: "Ghana", City: "Accra"}))
	road := airCard("road", "owner", types.Location{Country: "Nigeria", City: "Lagos"}, types.Location{Country: "Kenya", City: "Nairobi"})
	road.Mode = types.ModeRoad
	mustUpsert(t, s, road)

	snap, _ := s.Snapshot(context.Background(), "owner")
	_, err := snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "Lagos", Destination: "Nairobi"})
	if !errors.IsType(err, errors.TypeNoCorridor) {
		t.Fatalf("expected NO_CORRIDOR, got %v", err)
	}

	got := errors.AvailableCorridors(err)
	want := []string{
		"Dubai, UAE -> Accra, Ghana (per_kg)",
		"Guangzhou, China -> Abidjan, Ivory Coast (per_kg)",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d corridors, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("corridor %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResellerFallsBackToOwnerCards(t *testing.T) {
	s := newStore(t)
	mustUpsert(t, s, airCard("owner-card", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))
	mustUpsert(t, s, airCard("acme-card", "acme", types.Location{Country: "China"}, types.Location{Country: "Togo"}))

	snap, err := s.Snapshot(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	m, err := snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "China", Destination: "Togo"})
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if m.Card.ID != "acme-card" || m.OwnerBasePriced {
		t.Errorf("expected own card without owner pricing, got %s owner=%v", m.Card.ID, m.OwnerBasePriced)
	}

	m, err = snap.FindCard(CorridorQuery{Mode: types.ModeAir, Basis: types.BasisPerKg, Origin: "China", Destination: "Ghana"})
	if err != nil {
		t.Fatalf("FindCard: %v", err)
	}
	if m.Card.ID != "owner-card" || !m.OwnerBasePriced {
		t.Errorf("expected owner card with owner pricing, got %s owner=%v", m.Card.ID, m.OwnerBasePriced)
	}
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	s := newStore(t)
	card := airCard("c1", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	mustUpsert(t, s, card)

	before, _ := s.Snapshot(context.Background(), "owner")

	card.Tiers[0].UnitPrice = dec("1")
	card.Active = false
	mustUpsert(t, s, card)

	if before.OwnCards[0].Tiers[0].UnitPrice.String() != "1000" || !before.OwnCards[0].Active {
		t.Fatal("snapshot observed a later write")
	}

	after, _ := s.Snapshot(context.Background(), "owner")
	if after.OwnCards[0].Active {
		t.Fatal("new snapshot should see the update")
	}
	if after.Version == before.Version {
		t.Error("expected the version to change with the content")
	}
	if after.OwnCards[0].Seq != before.OwnCards[0].Seq || !after.OwnCards[0].CreatedAt.Equal(before.OwnCards[0].CreatedAt) {
		t.Error("replacing a card must keep its creation order")
	}
}

func TestSnapshotVersionStable(t *testing.T) {
	s := newStore(t)
	mustUpsert(t, s, airCard("c1", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))

	a, _ := s.Snapshot(context.Background(), "owner")
	b, _ := s.Snapshot(context.Background(), "owner")
	if a.Version != b.Version {
		t.Errorf("versions differ for identical content: %s vs %s", a.Version, b.Version)
	}
}

func TestUpsertValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	gap := airCard("gap", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	gap.Tiers[1].Lower = dec("12")
	if err := s.UpsertRateCard(ctx, gap); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR for a tier gap, got %v", err)
	}

	closed := airCard("closed", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	closed.Tiers[1].Upper = upper("100")
	if err := s.UpsertRateCard(ctx, closed); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR for a closed terminal tier, got %v", err)
	}

	orphan := airCard("orphan", "nobody", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	if err := s.UpsertRateCard(ctx, orphan); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected NOT_FOUND for an unknown tenant, got %v", err)
	}

	if err := s.UpsertTenant(ctx, &types.TenantPricingContext{ID: "bad", VATRate: dec("1.5")}); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR for vat > 1, got %v", err)
	}
}

func TestUpsertAssignsID(t *testing.T) {
	s := newStore(t)
	card := airCard("", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"})
	mustUpsert(t, s, card)
	if card.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}
}

func TestUnknownTenant(t *testing.T) {
	s := newStore(t)
	if _, err := s.Snapshot(context.Background(), "ghost"); !errors.IsType(err, errors.TypeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := newStore(t)
	mustUpsert(t, s, airCard("c0", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap, err := s.Snapshot(context.Background(), "owner")
				if err != nil {
					t.Errorf("Snapshot: %v", err)
					return
				}
				if len(snap.OwnCards) == 0 {
					t.Error("snapshot lost a card")
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		card := airCard("", "owner", types.Location{Country: "China"}, types.Location{Country: "Togo"})
		if err := s.UpsertRateCard(context.Background(), card); err != nil {
			t.Fatalf("UpsertRateCard: %v", err)
		}
	}
	wg.Wait()
}

func TestRulesAndPlansStayWithTheirTenant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.UpsertTenant(ctx, &types.TenantPricingContext{ID: "other"}); err != nil {
		t.Fatal(err)
	}

	rule := &types.SurchargeRule{ID: "r1", TenantID: "acme", Name: "Handling", Kind: types.SurchargePercent,
		Value: dec("0.05"), Base: types.BaseTransport, Active: true}
	if err := s.UpsertSurchargeRule(ctx, rule); err != nil {
		t.Fatal(err)
	}
	taken := *rule
	taken.TenantID = "other"
	if err := s.UpsertSurchargeRule(ctx, &taken); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR for another tenant's rule, got %v", err)
	}
	acme, err := s.Snapshot(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(acme.Surcharges) != 1 || acme.Surcharges[0].ID != "r1" {
		t.Errorf("acme rules = %v", acme.Surcharges)
	}

	plan := &types.Plan{ID: "p1", OwnerTenantID: "owner", Name: "Starter", Currency: types.CurrencyXOF,
		PriceMonth: dec("10000"), PriceYear: dec("100000"), Active: true}
	if err := s.UpsertPlan(ctx, plan); err != nil {
		t.Fatal(err)
	}
	stolen := *plan
	stolen.OwnerTenantID = "other"
	if err := s.UpsertPlan(ctx, &stolen); !errors.IsType(err, errors.TypeInput) {
		t.Errorf("expected INPUT_ERROR for another tenant's plan, got %v", err)
	}
	owner, err := s.Snapshot(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := owner.Plan("p1"); !ok {
		t.Error("owner lost plan p1")
	}

	// the owning tenant can still replace its own entries
	rule.Value = dec("0.07")
	if err := s.UpsertSurchargeRule(ctx, rule); err != nil {
		t.Errorf("re-upsert by owner failed: %v", err)
	}
	plan.PriceMonth = dec("12000")
	if err := s.UpsertPlan(ctx, plan); err != nil {
		t.Errorf("re-upsert by owner failed: %v", err)
	}
}

func TestSnapshotBuiltOncePerState(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mustUpsert(t, s, airCard("c1", "owner", types.Location{Country: "China"}, types.Location{Country: "Ghana"}))

	a, err := s.Snapshot(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Snapshot(ctx, "owner")
	if a != b {
		t.Error("expected the same snapshot for an unchanged state")
	}

	mustUpsert(t, s, airCard("c2", "owner", types.Location{Country: "China"}, types.Location{Country: "Togo"}))
	c, _ := s.Snapshot(ctx, "owner")
	if c == a || len(c.OwnCards) != 2 {
		t.Errorf("expected a new snapshot after a write, got %d cards", len(c.OwnCards))
	}
	if len(a.OwnCards) != 1 {
		t.Error("earlier snapshot changed after a write")
	}
}
