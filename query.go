package archon

import "sort"

// QueryTableMatch is one table's resolved match against a query's filter
// (§3 "Query"): the per-term column indices, its cascade group id (valid
// only when the query has a Cascade term), and the dirty-monitor snapshot
// used to decide whether its entity order needs resorting (§4.6).
type QueryTableMatch struct {
	table   *Table
	columns []int
	groupID int
	monitor []uint64
}

// QuerySlice is one contiguous run an ordered/sorted iteration walks: a
// match plus the [offset, offset+count) row range within its table.
type QuerySlice struct {
	Match  *QueryTableMatch
	Offset int
	Count  int
}

// queryMatchList is an insertion-ordered table->match set: a slice (ranged
// over to rebuild the ordered list) plus a TableID->slot index (for O(1)
// lookup), mirroring component.go's tableList pattern. Unlike tableList,
// entries are only ever appended here, never removed mid-query, so the slice
// doubles as a stable record of match (creation) order — ranging over a
// map would give spec.md:94's stable group-id splice a different relative
// order for equal-group-id (or, absent cascade, all) tables on every call.
type queryMatchList struct {
	list  []*QueryTableMatch
	index map[TableID]int
}

func newQueryMatchList() queryMatchList {
	return queryMatchList{index: make(map[TableID]int)}
}

func (l *queryMatchList) add(m *QueryTableMatch) {
	if _, ok := l.index[m.table.id]; ok {
		return
	}
	l.index[m.table.id] = len(l.list)
	l.list = append(l.list, m)
}

// Query is the persistent match cache of §4.6: a pivot-driven match set over
// an owning world, an ordered table list for plain iteration, and optional
// cascade grouping / orderBy sorting layered on top.
type Query struct {
	world  *World
	filter *Filter

	pivotIndex  int
	pivotRecord *ComponentRecord

	matches queryMatchList
	ordered []*QueryTableMatch

	hasCascade bool
	orderBy    func(a, b EntityId) bool
}

// NewQuery finalises filter and builds the initial match set. Combining an
// orderBy with a Cascade term is rejected by SetOrderBy (SPEC_FULL/spec.md
// §9 open question).
func NewQuery(w *World, filter *Filter) (*Query, error) {
	if err := filter.Finalize(); err != nil {
		return nil, err
	}
	q := &Query{world: w, filter: filter, matches: newQueryMatchList()}
	for _, t := range filter.Terms() {
		if t.Cascade {
			q.hasCascade = true
		}
	}
	q.pivotIndex, q.pivotRecord = selectPivot(w, filter)
	q.buildMatches()
	q.subscribe()
	return q, nil
}

// SetOrderBy switches the query to a globally sorted iteration order across
// every matched table (§4.6 "Sorting"). The order is always ascending entity
// id: cmp is stored but not consulted, only whether it is non-nil.
func (q *Query) SetOrderBy(cmp func(a, b EntityId) bool) error {
	if q.hasCascade {
		return ErrSortCascadeConflict
	}
	q.orderBy = cmp
	return nil
}

// subscribe keeps the ordered list current on TableFill/TableEmpty for the
// pivot term's id. A table not yet in the match set (one created after the
// query was built) is matched once, on its first fill.
func (q *Query) subscribe() {
	if q.pivotRecord == nil || q.pivotIndex < 0 {
		return
	}
	id := resolveMatchID(q.filter.Term(q.pivotIndex))
	q.world.observable.Register(EventTableFill, id, func(it *Iterator) {
		t := it.table
		if _, known := q.matches.index[t.id]; !known && !t.flags.IsPrefab && !t.flags.Disabled {
			cols := make([]int, q.filter.Count())
			if matchTable(q.filter, t, cols) {
				m := &QueryTableMatch{table: t, columns: cols}
				if q.hasCascade {
					m.groupID = tableDepth(q.world, t)
				}
				q.matches.add(m)
			}
		}
		q.rebuildOrdered()
	})
	q.world.observable.Register(EventTableEmpty, id, func(*Iterator) { q.rebuildOrdered() })
}

// buildMatches walks the pivot record's table cache once, testing every
// candidate against the full filter (§4.5 "match_table").
func (q *Query) buildMatches() {
	q.matches = newQueryMatchList()
	if q.pivotRecord == nil {
		return
	}
	cols := make([]int, q.filter.Count())
	ti := newTermIterator(q.pivotRecord, true)
	for t := ti.next(); t != nil; t = ti.next() {
		if !matchTable(q.filter, t, cols) {
			continue
		}
		m := &QueryTableMatch{table: t, columns: append([]int(nil), cols...)}
		if q.hasCascade {
			m.groupID = tableDepth(q.world, t)
		}
		q.matches.add(m)
	}
	q.rebuildOrdered()
}

// rebuildOrdered refreshes the ordered (non-empty-only) table list from the
// existing match set, without re-running match_table — a table transitions
// on and off the list purely by its current row count (§4.5 "non-empty
// matches move onto the ordered table list, empty matches move off it —
// without re-running the match").
func (q *Query) rebuildOrdered() {
	list := make([]*QueryTableMatch, 0, len(q.matches.list))
	for _, m := range q.matches.list {
		if m.table.Length() > 0 {
			list = append(list, m)
		}
	}
	if q.hasCascade {
		sort.SliceStable(list, func(i, j int) bool { return list[i].groupID < list[j].groupID })
	}
	q.ordered = list
}

// tableDepth is a table's depth in the ChildOf relation: the table carrying
// no (ChildOf, parent!=0) pair is depth 0; otherwise one more than its
// parent's table depth. Group id is a table-level property because the
// relation object is part of the table's type, shared by every entity the
// table holds.
func tableDepth(w *World, t *Table) int {
	for _, id := range t.typ {
		if !id.IsPair() {
			continue
		}
		rel, obj := SplitPair(id)
		if rel == RelationChildOf && obj != 0 {
			parentTable := w.tableOfEntity(obj)
			if parentTable == nil || parentTable == t {
				return 1
			}
			return 1 + tableDepth(w, parentTable)
		}
	}
	return 0
}

func (q *Query) checkTableMonitor(m *QueryTableMatch) bool {
	if m.monitor == nil {
		return true
	}
	if m.monitor[0] != m.table.dirty {
		return true
	}
	for i, si := range m.columns {
		if si < 0 {
			continue
		}
		if m.monitor[i+1] != m.table.colDirty[si] {
			return true
		}
	}
	return false
}

func (q *Query) syncTableMonitor(m *QueryTableMatch) {
	snap := make([]uint64, len(m.columns)+1)
	snap[0] = m.table.dirty
	for i, si := range m.columns {
		if si >= 0 {
			snap[i+1] = m.table.colDirty[si]
		}
	}
	m.monitor = snap
}

// OrderedSlices returns the row ranges this query's current iteration
// should walk: one whole-table slice per ordered match when no orderBy is
// set, or a merged, globally-sorted sequence of slices when one is.
func (q *Query) OrderedSlices() []QuerySlice {
	if q.orderBy == nil {
		out := make([]QuerySlice, 0, len(q.ordered))
		for _, m := range q.ordered {
			out = append(out, QuerySlice{Match: m, Offset: 0, Count: m.table.Length()})
		}
		return out
	}
	for _, m := range q.ordered {
		if q.checkTableMonitor(m) {
			m.table.SortByEntity()
			q.syncTableMonitor(m)
		}
	}
	return q.mergeSortedSlices()
}

// mergeSortedSlices performs the N-way merge of §4.6 over every ordered
// match's (now entity-sorted) table, coalescing consecutive rows drawn from
// the same table into one slice.
func (q *Query) mergeSortedSlices() []QuerySlice {
	type cursor struct {
		match *QueryTableMatch
		pos   int
	}
	cursors := make([]*cursor, 0, len(q.ordered))
	for _, m := range q.ordered {
		if m.table.Length() > 0 {
			cursors = append(cursors, &cursor{match: m})
		}
	}

	var out []QuerySlice
	for {
		best := -1
		for i, c := range cursors {
			if c.pos >= c.match.table.Length() {
				continue
			}
			if best == -1 || c.match.table.entities[c.pos] < cursors[best].match.table.entities[cursors[best].pos] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		c := cursors[best]
		start := c.pos
		for {
			c.pos++
			if c.pos >= c.match.table.Length() {
				break
			}
			stillMin := true
			for i, o := range cursors {
				if i == best || o.pos >= o.match.table.Length() {
					continue
				}
				if o.match.table.entities[o.pos] < c.match.table.entities[c.pos] {
					stillMin = false
					break
				}
			}
			if !stillMin {
				break
			}
		}
		out = append(out, QuerySlice{Match: c.match, Offset: start, Count: c.pos - start})
	}
	return out
}

// Each walks every matched row, building one Iterator per slice.
func (q *Query) Each(fn func(it *Iterator)) {
	termIDs := make([]EntityId, q.filter.Count())
	for i := 0; i < q.filter.Count(); i++ {
		termIDs[i] = q.filter.Term(i).ID
	}
	for _, s := range q.OrderedSlices() {
		it := newMatchIterator(q.world, s.Match.table, s.Offset, s.Count, termIDs, s.Match.columns)
		fn(it)
	}
}

// MatchCount returns the number of tables currently in the ordered
// (non-empty) list — mainly a testing/introspection aid.
func (q *Query) MatchCount() int { return len(q.ordered) }
