package archon

import "github.com/kamstrup/intmap"

// edgeDiff records the ids a graph edge adds/removes relative to its source
// table, beyond the single id that labels the edge itself (relevant only for
// prefab-inheritance edges, which pull in the prefab's whole shape). Only an
// edge that leaves the table unchanged (adding an id already present, or
// removing one that is absent) shares emptyDiff; every other edge, including
// a plain single-component one, allocates its own diff.
type edgeDiff struct {
	added   []EntityId
	removed []EntityId
}

var emptyDiff = &edgeDiff{}

// graphEdge is one outgoing arc of the archetype graph: the table reached by
// adding (or removing) the edge's labelling id, plus the diff describing any
// additional ids pulled in along the way (prefab inheritance).
type graphEdge struct {
	to   *Table
	diff *edgeDiff
}

// edgeMap stores a table's outgoing add/remove edges, indexed by id. Ids
// below 256 (the vast majority of component/tag ids in any real world) are
// stored inline in a flat array; larger ids — chiefly pair ids, whose
// relation/object halves routinely exceed 256 — spill into an intmap.Map
// (§4.3 Design Notes, "small-id threshold"; intmap usage grounded on
// other_examples' plus3-ooftn archetype cache).
type edgeMap struct {
	small [256]*graphEdge
	large     *intmap.Map[uint64, *graphEdge]
	largeKeys []uint64 // enumeration aid; intmap.Map has no public iterator
}

func newEdgeMap() *edgeMap {
	return &edgeMap{}
}

func (m *edgeMap) get(id EntityId) *graphEdge {
	if id < 256 {
		return m.small[id]
	}
	if m.large == nil {
		return nil
	}
	edge, _ := m.large.Get(uint64(id))
	return edge
}

func (m *edgeMap) set(id EntityId, edge *graphEdge) {
	if id < 256 {
		m.small[id] = edge
		return
	}
	if m.large == nil {
		m.large = intmap.New[uint64, *graphEdge](8)
	}
	if _, existed := m.large.Get(uint64(id)); !existed {
		m.largeKeys = append(m.largeKeys, uint64(id))
	}
	m.large.Put(uint64(id), edge)
}

func (m *edgeMap) delete(id EntityId) {
	if id < 256 {
		m.small[id] = nil
		return
	}
	if m.large != nil {
		m.large.Del(uint64(id))
	}
}

// graphNode is the per-table slot of the archetype graph (§4.3): the set of
// edges reachable by adding or removing a single id from this table's type.
type graphNode struct {
	add    *edgeMap
	remove *edgeMap
}

func newGraphNode() graphNode {
	return graphNode{add: newEdgeMap(), remove: newEdgeMap()}
}

// insertSorted returns a new sorted type array with id inserted, or typ
// unchanged (same backing semantics as append, a fresh slice) if id is
// already present.
func insertSorted(typ []EntityId, id EntityId) []EntityId {
	lo, hi := 0, len(typ)
	for lo < hi {
		mid := (lo + hi) / 2
		if typ[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(typ) && typ[lo] == id {
		return typ
	}
	out := make([]EntityId, len(typ)+1)
	copy(out, typ[:lo])
	out[lo] = id
	copy(out[lo+1:], typ[lo:])
	return out
}

// removeSorted returns a new sorted type array with id removed, or typ
// unchanged if id was not present.
func removeSorted(typ []EntityId, id EntityId) []EntityId {
	lo, hi := 0, len(typ)
	for lo < hi {
		mid := (lo + hi) / 2
		if typ[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(typ) || typ[lo] != id {
		return typ
	}
	out := make([]EntityId, len(typ)-1)
	copy(out, typ[:lo])
	copy(out[lo:], typ[lo+1:])
	return out
}

// unionSorted merges extra into typ, preserving sort order and de-duplicating.
func unionSorted(typ []EntityId, extra []EntityId) []EntityId {
	out := typ
	for _, id := range extra {
		out = insertSorted(out, id)
	}
	return out
}

// prefabInheritedIds returns the ids a new (IsA, prefab) edge pulls in from
// the prefab's own table, beyond the pair id itself: every id of the
// prefab's type except the TagPrefab marker and any of the prefab's own IsA
// pairs (the prefab's own IsA pairs are not followed here). This replays the
// prefab's *shape* only; the new entity gets
// its own, independently-constructed storage for every inherited data id —
// the actual value copy happens once, after the structural move, in
// world.go's instantiate path (Copy from the prefab's row).
func prefabInheritedIds(prefab *Table) []EntityId {
	if prefab == nil {
		return nil
	}
	out := make([]EntityId, 0, len(prefab.typ))
	for _, id := range prefab.typ {
		if id == TagPrefab {
			continue
		}
		if id.IsPair() {
			relation, _ := SplitPair(id)
			if relation == RelationIsA {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

// traverseAdd resolves the table reached by adding id to from's type,
// creating the destination table and caching the edge (both directions) on
// first traversal (§4.3 "traverse_add"). When id is an (IsA, prefab) pair,
// the prefab's whole non-tag-marker shape is folded into the destination
// type and recorded in the edge's diff so callers can replay it without a
// second graph walk.
func traverseAdd(w *World, from *Table, id EntityId) (*Table, *edgeDiff) {
	if edge := from.graph.add.get(id); edge != nil {
		return edge.to, edge.diff
	}

	if from.Contains(id) {
		edge := &graphEdge{to: from, diff: emptyDiff}
		from.graph.add.set(id, edge)
		return from, emptyDiff
	}

	newType := insertSorted(from.typ, id)
	diff := &edgeDiff{added: []EntityId{id}}

	if id.IsPair() {
		if relation, object := SplitPair(id); relation == RelationIsA {
			if prefab := w.tableOfEntity(EntityId(object)); prefab != nil {
				inherited := prefabInheritedIds(prefab)
				before := len(newType)
				newType = unionSorted(newType, inherited)
				if len(newType) > before {
					diff = &edgeDiff{added: unionSorted([]EntityId{id}, inherited)}
				}
			}
		}
	}

	to := w.findOrCreateTable(newType)
	edge := &graphEdge{to: to, diff: diff}
	from.graph.add.set(id, edge)

	reverse := &edgeDiff{removed: diff.added}
	to.graph.remove.set(id, &graphEdge{to: from, diff: reverse})

	return to, diff
}

// traverseRemove resolves the table reached by removing id from from's type
// (§4.3 "traverse_remove"). Removing an id the table does not carry is a
// no-op edge back to from.
func traverseRemove(w *World, from *Table, id EntityId) (*Table, *edgeDiff) {
	if edge := from.graph.remove.get(id); edge != nil {
		return edge.to, edge.diff
	}

	if !from.Contains(id) {
		edge := &graphEdge{to: from, diff: emptyDiff}
		from.graph.remove.set(id, edge)
		return from, emptyDiff
	}

	newType := removeSorted(from.typ, id)
	to := w.findOrCreateTable(newType)
	diff := &edgeDiff{removed: []EntityId{id}}
	from.graph.remove.set(id, &graphEdge{to: to, diff: diff})

	reverse := &edgeDiff{added: diff.removed}
	to.graph.add.set(id, &graphEdge{to: from, diff: reverse})

	return to, diff
}

// detachEdges removes every cached edge pointing at t, from both ends, used
// when t is released (§4.3 "edge teardown on table release").
func detachEdges(t *Table) {
	for _, id := range t.typ {
		if edge := t.graph.remove.get(id); edge != nil && edge.to != t {
			edge.to.graph.add.delete(id)
		}
	}
	if t.graph.add != nil {
		walkEdges(t.graph.add, func(id EntityId, edge *graphEdge) {
			if edge.to != t {
				edge.to.graph.remove.delete(id)
			}
		})
	}
}

// walkEdges visits every populated entry of an edgeMap.
func walkEdges(m *edgeMap, fn func(id EntityId, edge *graphEdge)) {
	for i, edge := range m.small {
		if edge != nil {
			fn(EntityId(i), edge)
		}
	}
	if m.large == nil {
		return
	}
	for _, key := range m.largeKeys {
		if edge, ok := m.large.Get(key); ok {
			fn(EntityId(key), edge)
		}
	}
}
