package sensorclass

import "testing"

func TestSortedByName(t *testing.T) {
	r := newFromNames([]string{"Zeta", "Alpha", "Mid"})

	if id, ok := r.ID("Alpha"); !ok || id != 0 {
		t.Fatalf("Alpha id = %d, %v; want 0, true", id, ok)
	}
	if id, ok := r.ID("Mid"); !ok || id != 1 {
		t.Fatalf("Mid id = %d, %v; want 1, true", id, ok)
	}
	if id, ok := r.ID("Zeta"); !ok || id != 2 {
		t.Fatalf("Zeta id = %d, %v; want 2, true", id, ok)
	}
}

func TestUnknownIDDecodesSynthetic(t *testing.T) {
	r := New()
	if name := r.Name(9999); name != "unknown_9999" {
		t.Fatalf("Name(9999) = %q; want unknown_9999", name)
	}
}

func TestIdempotentUnderReenumeration(t *testing.T) {
	names := []string{"Charlie", "Alpha", "Bravo"}
	a := newFromNames(names)
	b := newFromNames(names)

	for _, n := range names {
		idA, _ := a.ID(n)
		idB, _ := b.ID(n)
		if idA != idB {
			t.Fatalf("id for %q not stable across re-enumeration: %d != %d", n, idA, idB)
		}
	}
}

func TestUnknownNameLookup(t *testing.T) {
	r := New()
	if _, ok := r.ID("NotARealSensor"); ok {
		t.Fatalf("ID(unknown name) returned ok=true")
	}
}
