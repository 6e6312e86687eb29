package archon

import "reflect"

// inlineTermCache is the small-inline capacity for per-term arrays (§4.7
// "a small-inline cache (4 slots) ... so the arrays live inline when
// term_count ≤ 4 and heap-allocated otherwise").
const inlineTermCache = 4

// Iterator is the uniform iteration handle of §4.7: a world/stage, the
// current table, the matched entity range, and per-term column caches. When
// a query match has more than inlineTermCache terms the column cache
// spills to a heap slice instead of the fixed array.
type Iterator struct {
	world *World
	stage *Stage
	table *Table

	offset int
	count  int

	entities []EntityId

	termCount    int
	termIDs      [inlineTermCache]EntityId
	termIDsHeap  []EntityId
	termCols     [inlineTermCache]int
	termColsHeap []int

	// filterMode, when true, skips resolving column pointers entirely.
	// Nothing in this package sets it; observer/trigger dispatch
	// (Observable.Emit) builds its iterators with no term columns instead.
	filterMode bool

	vars [1]EntityId // variable 0 is always This
}

// newMatchIterator builds an iterator over [offset, offset+count) of table,
// with one term-cache slot per entry in columns (§4.7 "populate_data").
func newMatchIterator(w *World, table *Table, offset, count int, termIDs []EntityId, columns []int) *Iterator {
	it := &Iterator{world: w, table: table, offset: offset, count: count, termCount: len(termIDs)}
	if it.termCount > inlineTermCache {
		it.termIDsHeap = append([]EntityId(nil), termIDs...)
		it.termColsHeap = append([]int(nil), columns...)
	} else {
		copy(it.termIDs[:], termIDs)
		copy(it.termCols[:], columns)
	}
	it.vars[0] = PropertyThis
	it.populateEntities()
	return it
}

func (it *Iterator) populateEntities() {
	if it.table == nil {
		return
	}
	it.entities = it.table.entities[it.offset : it.offset+it.count]
}

// Entities returns the entity ids covered by this iterator batch.
func (it *Iterator) Entities() []EntityId { return it.entities }

// Count returns the number of rows covered.
func (it *Iterator) Count() int { return it.count }

// TermCount returns the number of terms cached on this iterator.
func (it *Iterator) TermCount() int { return it.termCount }

func (it *Iterator) termID(i int) EntityId {
	if it.termCount > inlineTermCache {
		return it.termIDsHeap[i]
	}
	return it.termIDs[i]
}

func (it *Iterator) columnIndex(i int) int {
	if it.termCount > inlineTermCache {
		return it.termColsHeap[i]
	}
	return it.termCols[i]
}

// TermID returns the resolved component id for term i.
func (it *Iterator) TermID(i int) EntityId { return it.termID(i) }

// Column returns the term's storage slice over [offset, offset+count), or
// the zero Value if the term is tag-shaped, optional-and-absent, or the
// iterator is in filter mode.
func (it *Iterator) Column(i int) reflect.Value {
	if it.filterMode || it.table == nil {
		return reflect.Value{}
	}
	si := it.columnIndex(i)
	if si < 0 {
		return reflect.Value{}
	}
	col := it.table.columns[si]
	return col.data.Slice(it.offset, it.offset+it.count)
}

// Elem returns a single row's element for term i, row-relative to this
// iterator's batch (0 <= row < Count()).
func (it *Iterator) Elem(i, row int) reflect.Value {
	if it.filterMode || it.table == nil {
		return reflect.Value{}
	}
	si := it.columnIndex(i)
	if si < 0 {
		return reflect.Value{}
	}
	return it.table.columns[si].elem(it.offset + row)
}

// WorkerSlice chains a worker split iterator onto it (§4.7 "Worker split
// iterator"): distributes [0, Count()) into `total` contiguous ranges,
// handing the remainder to the lowest-index workers, and returns an
// iterator restricted to the slice for `worker`. Computed per chained
// batch, not once per query, matching the source's per-next split.
func (it *Iterator) WorkerSlice(worker, total int) *Iterator {
	if total <= 1 {
		return it
	}
	n := it.count
	base := n / total
	rem := n % total

	var localOffset, count int
	if worker < rem {
		count = base + 1
		localOffset = worker * count
	} else {
		count = base
		localOffset = rem*(base+1) + (worker-rem)*base
	}

	sub := *it
	sub.offset = it.offset + localOffset
	sub.count = count
	sub.populateEntities()
	return &sub
}

// termIterator advances through one component record's non-empty, then
// (if requested) empty table list, skipping prefab and disabled tables
// (§4.7 "Term iterator").
type termIterator struct {
	record       *ComponentRecord
	includeEmpty bool
	phase        int
	idx          int
}

func newTermIterator(record *ComponentRecord, includeEmpty bool) *termIterator {
	return &termIterator{record: record, includeEmpty: includeEmpty}
}

func (ti *termIterator) next() *Table {
	for {
		list := ti.record.nonEmpty.tables
		if ti.phase == 1 {
			list = ti.record.empty.tables
		}
		if ti.idx >= len(list) {
			if ti.phase == 0 && ti.includeEmpty {
				ti.phase, ti.idx = 1, 0
				continue
			}
			return nil
		}
		t := list[ti.idx]
		ti.idx++
		if t.flags.IsPrefab || t.flags.Disabled {
			continue
		}
		return t
	}
}
