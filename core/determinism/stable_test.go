package determinism

import (
	"strings"
	"testing"
)

func TestIDGeneratorIsStable(t *testing.T) {
	g := NewIDGenerator("quote")
	a := g.Generate("platform", "v1", "card", "20")
	b := g.Generate("platform", "v1", "card", "20")
	if a != b {
		t.Fatalf("same inputs gave %s and %s", a, b)
	}
	if !strings.HasPrefix(a.String(), "quote_") || len(a) != len("quote_")+16 {
		t.Errorf("unexpected id shape %q", a)
	}
	// part boundaries are significant
	if g.Generate("ab", "c") == g.Generate("a", "bc") {
		t.Error("different part splits collided")
	}
	if NewIDGenerator("other").Generate("platform") == g.Generate("platform") {
		t.Error("namespaces collided")
	}
}

func TestHashJSONIgnoresMapOrder(t *testing.T) {
	m1 := map[string]int{"a": 1, "b": 2, "c": 3}
	m2 := map[string]int{"c": 3, "b": 2, "a": 1}
	h1, err := HashJSON(m1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashJSON(m2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1.Hex(), h2.Hex())
	}
	if h1.IsZero() || len(h1.Short()) != 16 {
		t.Errorf("unexpected hash %s", h1.Hex())
	}

	if _, err := HashJSON(func() {}); err == nil {
		t.Error("expected an error for an unencodable value")
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]bool{"XOF": true, "EUR": true, "USD": true})
	want := []string{"EUR", "USD", "XOF"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
