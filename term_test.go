package archon

import "testing"

func TestFinalizeTermFromFirstSecond(t *testing.T) {
	term := Term{First: RelationChildOf, Second: EntityId(7)}
	if err := finalizeTerm(&term); err != nil {
		t.Fatalf("finalizeTerm: %v", err)
	}
	want := NewPair(uint32(RelationChildOf), 7)
	if term.ID != want {
		t.Errorf("ID = %v, want %v", term.ID, want)
	}
	if term.Role != RolePair {
		t.Errorf("Role = %v, want RolePair", term.Role)
	}
	if term.Source != PropertyThis {
		t.Errorf("Source should default to PropertyThis")
	}
}

func TestFinalizeTermContradiction(t *testing.T) {
	pair := NewPair(uint32(RelationChildOf), 7)
	term := Term{ID: pair, First: RelationIsA}
	if err := finalizeTerm(&term); err == nil {
		t.Errorf("expected a contradiction error when first disagrees with the pair id")
	}
}

func TestFinalizeTermEmptyIsContradiction(t *testing.T) {
	term := Term{}
	if err := finalizeTerm(&term); err == nil {
		t.Errorf("expected an error for a term with no id/first/second and not optional")
	}
}

func TestFinalizeOptionalTermWithNoID(t *testing.T) {
	term := Term{Optional: true}
	if err := finalizeTerm(&term); err != nil {
		t.Errorf("an optional term with no id should still finalise: %v", err)
	}
}

func TestFilterAddTermRejectsPastMax(t *testing.T) {
	f := NewFilter()
	for i := 0; i < maxFilterTerms; i++ {
		if err := f.AddTerm(Term{ID: EntityId(FirstUserID) + EntityId(i)}); err != nil {
			t.Fatalf("AddTerm %d: %v", i, err)
		}
	}
	if err := f.AddTerm(Term{ID: EntityId(999)}); err == nil {
		t.Errorf("expected ErrTooManyTerms past the cap")
	}
}

func TestMatchTermWildcardRelation(t *testing.T) {
	w, position, _ := newTestWorld(t)
	parent := w.CreateEntity(position)
	child := w.CreateEntity(NewPair(uint32(RelationChildOf), uint32(parent)))
	tbl := w.tableOfEntity(child)

	term := Term{Role: RolePair, First: RelationChildOf, Second: Wildcard}
	_, matched := matchTerm(term, tbl)
	if !matched {
		t.Errorf("(ChildOf, *) should match a table carrying any ChildOf pair")
	}

	noMatchTerm := Term{Role: RolePair, First: RelationIsA, Second: Wildcard}
	_, matched = matchTerm(noMatchTerm, tbl)
	if matched {
		t.Errorf("(IsA, *) should not match a table with only a ChildOf pair")
	}
}

func TestFinalizeTermSingleton(t *testing.T) {
	term := Term{ID: EntityId(FirstUserID), Source: PropertyNone}
	if err := finalizeTerm(&term); err != nil {
		t.Fatalf("finalizeTerm: %v", err)
	}
	if !term.Singleton {
		t.Errorf("Source == PropertyNone should set Singleton")
	}
}

func TestMatchTableSingletonAlwaysMatchesWithNoColumn(t *testing.T) {
	w, position, _ := newTestWorld(t)
	w.CreateEntity(position)
	e := w.CreateEntity(position)
	tbl := w.tableOfEntity(e)

	f := NewFilter()
	_ = f.AddTerm(Term{ID: position})
	_ = f.AddTerm(Term{ID: EntityId(FirstUserID), Source: PropertyNone})
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	cols := make([]int, f.Count())
	if !matchTable(f, tbl, cols) {
		t.Fatalf("table carrying position should match")
	}
	if cols[1] != -1 {
		t.Errorf("singleton term should cache no column, got %d", cols[1])
	}
}

func TestSelectPivotSkipsSingletonTerm(t *testing.T) {
	w, position, _ := newTestWorld(t)
	w.CreateEntity(position)

	f := NewFilter()
	_ = f.AddTerm(Term{ID: EntityId(FirstUserID), Source: PropertyNone})
	_ = f.AddTerm(Term{ID: position})
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	idx, rec := selectPivot(w, f)
	if rec == nil {
		t.Fatalf("selectPivot returned a nil record")
	}
	if idx != 1 {
		t.Errorf("pivot index = %d, want 1 (singleton term at index 0 must be skipped)", idx)
	}
}

func TestSelectPivotPrefersFewestCandidateTables(t *testing.T) {
	w, position, velocity := newTestWorld(t)
	name := w.RegisterComponent("Name", nil, Hooks{})
	// position spans three distinct tables (one per extra tag combined
	// with it); velocity appears in a single table only.
	w.CreateEntity(position)
	w.CreateEntity(position, name)
	w.CreateEntity(position, TagDisabled)
	w.CreateEntity(velocity)

	f := NewFilter()
	_ = f.AddTerm(Term{ID: position})
	_ = f.AddTerm(Term{ID: velocity})
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	idx, rec := selectPivot(w, f)
	if rec == nil {
		t.Fatalf("selectPivot returned a nil record")
	}
	if idx != 1 {
		t.Errorf("pivot index = %d, want 1 (velocity's record has fewer candidate tables)", idx)
	}
}
