package archon

import "testing"

func TestTraverseAddCachesEdge(t *testing.T) {
	w, position, _ := newTestWorld(t)
	from := w.root

	to1, diff1 := traverseAdd(w, from, position)
	to2, diff2 := traverseAdd(w, from, position)

	if to1 != to2 {
		t.Errorf("traverseAdd for the same id should resolve to the same table twice")
	}
	if diff1 != diff2 {
		t.Errorf("traverseAdd should return the cached diff on the second call")
	}
	if !to1.Contains(position) {
		t.Errorf("destination table should contain the added id")
	}
}

func TestTraverseAddThenRemoveReturnsToOrigin(t *testing.T) {
	w, position, _ := newTestWorld(t)
	withPos, _ := traverseAdd(w, w.root, position)
	back, _ := traverseRemove(w, withPos, position)

	if back != w.root {
		t.Errorf("removing the only added id should traverse back to root")
	}
}

func TestTraverseAddRepeatIsNoop(t *testing.T) {
	w, position, _ := newTestWorld(t)
	withPos, _ := traverseAdd(w, w.root, position)
	again, diff := traverseAdd(w, withPos, position)

	if again != withPos {
		t.Errorf("adding an id already present should resolve to the same table")
	}
	if diff != emptyDiff {
		t.Errorf("adding an id already present should yield the shared empty diff")
	}
}

func TestTraverseAddPrefabFoldsShape(t *testing.T) {
	w, position, velocity := newTestWorld(t)
	prefab := w.CreateEntity(TagPrefab, position, velocity)

	isA := NewPair(uint32(RelationIsA), uint32(prefab))
	dst, diff := traverseAdd(w, w.root, isA)

	if !dst.Contains(position) || !dst.Contains(velocity) {
		t.Errorf("instantiating a prefab should fold its shape into the destination table, got type %v", dst.typ)
	}
	if len(diff.added) < 3 {
		t.Errorf("diff.added should include the pair plus both inherited ids, got %v", diff.added)
	}
}

func TestEdgeMapLargeIDsSpillToIntmap(t *testing.T) {
	w := NewWorld(1)
	// Pair ids are always >= RolePair's bit, far past the inline-256
	// threshold, so a graph edge labelled by a pair id must spill into the
	// intmap-backed large side of edgeMap.
	pair := NewPair(500, 1)
	dst, _ := traverseAdd(w, w.root, pair)

	if dst == w.root {
		t.Fatalf("traverseAdd with a large id should reach a new table")
	}
	if w.root.graph.add.get(pair) == nil {
		t.Fatalf("edge for a large id was not retrievable after insertion")
	}

	var seen []EntityId
	walkEdges(w.root.graph.add, func(id EntityId, _ *graphEdge) { seen = append(seen, id) })
	found := false
	for _, id := range seen {
		if id == pair {
			found = true
		}
	}
	if !found {
		t.Errorf("walkEdges did not enumerate the large-id edge; seen=%v", seen)
	}
}

func TestFindOrCreateTableDeduplicatesByType(t *testing.T) {
	w, position, velocity := newTestWorld(t)
	t1 := w.findOrCreateTable([]EntityId{position, velocity})
	t2 := w.findOrCreateTable([]EntityId{position, velocity})
	if t1 != t2 {
		t.Errorf("findOrCreateTable should return the same table for the same type twice")
	}
}
