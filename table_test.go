package archon

import (
	"reflect"
	"testing"
)

func TestAppendAndDeleteEntitySwapsLast(t *testing.T) {
	w := NewWorld(1)
	position := w.RegisterComponent("Position", reflect.TypeOf(Position{}), Hooks{})

	tbl := w.findOrCreateTable([]EntityId{position})

	a, b, c := w.CreateEntity(), w.CreateEntity(), w.CreateEntity()
	for _, e := range []EntityId{a, b, c} {
		info := w.infoOf(e)
		tbl.AppendNewEntity(e, info, true)
	}
	if tbl.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", tbl.Length())
	}

	// Delete the middle row; the last row (c) should swap into its place.
	bInfo := w.infoOf(b)
	tbl.DeleteEntity(bInfo.row, true)

	if tbl.Length() != 2 {
		t.Fatalf("Length() after delete = %d, want 2", tbl.Length())
	}
	if tbl.entities[0] != a {
		t.Errorf("row 0 = %v, want a (%v)", tbl.entities[0], a)
	}
	if tbl.entities[1] != c {
		t.Errorf("row 1 after swap = %v, want c (%v)", tbl.entities[1], c)
	}
	if w.infoOf(c).row != 1 {
		t.Errorf("c's info.row not updated after swap, got %d", w.infoOf(c).row)
	}
}

func TestColumnDirtyBumpsOnWrite(t *testing.T) {
	w := NewWorld(1)
	position := w.RegisterComponent("Position", reflect.TypeOf(Position{}), Hooks{})
	e := w.CreateEntity(position)

	info := w.infoOf(e)
	before := info.table.colDirty[0]

	if err := w.SetComponent(e, position, reflect.ValueOf(Position{X: 1, Y: 1})); err != nil {
		t.Fatalf("SetComponent: %v", err)
	}
	after := info.table.colDirty[0]
	if after <= before {
		t.Errorf("colDirty did not increase: before=%d after=%d", before, after)
	}
}

func TestSortByEntityKeepsColumnsAligned(t *testing.T) {
	w := NewWorld(1)
	position := w.RegisterComponent("Position", reflect.TypeOf(Position{}), Hooks{})

	var ids []EntityId
	for i := 0; i < 5; i++ {
		e := w.CreateEntity(position)
		ids = append(ids, e)
		if err := w.SetComponent(e, position, reflect.ValueOf(Position{X: float64(e), Y: 0})); err != nil {
			t.Fatalf("SetComponent: %v", err)
		}
	}

	tbl := w.infoOf(ids[0]).table
	tbl.SortByEntity()

	for i := 1; i < tbl.Length(); i++ {
		if tbl.entities[i-1] >= tbl.entities[i] {
			t.Fatalf("entities not sorted ascending at %d: %v >= %v", i, tbl.entities[i-1], tbl.entities[i])
		}
	}
	for i, e := range tbl.entities {
		pos, ok := w.GetComponent(e, position)
		if !ok {
			t.Fatalf("row %d: GetComponent failed for %v", i, e)
		}
		if pos.Interface().(Position).X != float64(e) {
			t.Errorf("row %d: Position.X = %v, want %v (column desynced from entity after sort)", i, pos.Interface().(Position).X, float64(e))
		}
	}
}

// TestMoveEntityRunsHooksForUniqueColumns guards against the fixed bug where
// a column present only in the source table skipped its dtor/on_remove, and
// a column present only in the destination skipped its ctor/on_add, during a
// table-to-table move.
func TestMoveEntityRunsHooksForUniqueColumns(t *testing.T) {
	var srcDtors, dstCtors int
	srcOnlyHooks := Hooks{Dtor: func(reflect.Value) { srcDtors++ }}
	dstOnlyHooks := Hooks{Ctor: func(reflect.Value) { dstCtors++ }}

	w := NewWorld(1)
	srcOnly := w.RegisterComponent("SrcOnly", reflect.TypeOf(Position{}), srcOnlyHooks)
	dstOnly := w.RegisterComponent("DstOnly", reflect.TypeOf(Velocity{}), dstOnlyHooks)

	e := w.CreateEntity(srcOnly)
	if srcDtors != 0 {
		t.Fatalf("dtor ran before any move")
	}

	if err := w.AddComponent(e, dstOnly); err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	if dstCtors != 1 {
		t.Errorf("dstOnly ctor ran %d times, want 1", dstCtors)
	}

	if err := w.RemoveComponent(e, srcOnly); err != nil {
		t.Fatalf("RemoveComponent: %v", err)
	}
	if srcDtors != 1 {
		t.Errorf("srcOnly dtor ran %d times, want 1", srcDtors)
	}
}
