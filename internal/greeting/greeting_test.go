package greeting

import (
	"reflect"
	"testing"
)

type fixedRand int

func (f fixedRand) Intn(n int) int { return int(f) % n }

func TestSelect(t *testing.T) {
	t.Parallel()
	tbl := Table{"morning": {"Buongiorno", "Salve"}, "night": nil}

	if got := tbl.Select("morning", false, fixedRand(0)); got != "Buongiorno" {
		t.Fatalf("Select = %q", got)
	}
	if got := tbl.Select("morning", false, fixedRand(1)); got != "Salve" {
		t.Fatalf("Select = %q", got)
	}
	if got := tbl.Select("morning", true, fixedRand(0)); got != "" {
		t.Fatalf("skip should yield empty, got %q", got)
	}
	if got := tbl.Select("night", false, nil); got != "" {
		t.Fatalf("empty list should yield empty, got %q", got)
	}
	if got := tbl.Select("unknown", false, nil); got != "" {
		t.Fatalf("unknown segment should yield empty, got %q", got)
	}
}

func TestSelectUsesEveryEntry(t *testing.T) {
	t.Parallel()
	tbl := Defaults()
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[tbl.Select("afternoon", false, nil)] = true
	}
	for _, g := range tbl["afternoon"] {
		if !seen[g] {
			t.Fatalf("greeting %q never selected", g)
		}
	}
}

func TestWithOverridesDoesNotMutate(t *testing.T) {
	t.Parallel()
	base := Table{"morning": {"Buongiorno"}, "night": {"Buonanotte"}}
	orig := base.Clone()

	eff := base.WithOverrides(map[string]any{
		"morning": "Sveglia!",
		"night":   []any{"Notte", "Dormi"},
		"brunch":  "ignored",
	})

	if !reflect.DeepEqual(base, orig) {
		t.Fatalf("stored table mutated: %v", base)
	}
	if want := []string{"Sveglia!"}; !reflect.DeepEqual(eff["morning"], want) {
		t.Fatalf("morning override = %v, want %v", eff["morning"], want)
	}
	if want := []string{"Notte", "Dormi"}; !reflect.DeepEqual(eff["night"], want) {
		t.Fatalf("night override = %v, want %v", eff["night"], want)
	}
	if _, ok := eff["brunch"]; ok {
		t.Fatal("unknown segment must not be added")
	}
}
