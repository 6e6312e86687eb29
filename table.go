package archon

import (
	"reflect"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
)

// TableID stably identifies an archetype table for its whole lifetime
// (§3 "identified by a stable 64-bit id").
type TableID uint64

// column is one component's contiguous storage, grown geometrically and
// driven entirely through its ComponentTypeInfo's hooks (Design Notes:
// "typed columns are impossible ... model a column as {capacity, len,
// element_layout, bytes} plus a ComponentTypeInfo reference").
type column struct {
	info *ComponentTypeInfo
	data reflect.Value // Kind == Slice, Type == SliceOf(info.Type)
}

func newColumn(info *ComponentTypeInfo) *column {
	st := reflect.SliceOf(info.Type)
	return &column{info: info, data: reflect.MakeSlice(st, 0, 0)}
}

func (c *column) len() int { return c.data.Len() }

func (c *column) reserve(extra int) {
	need := c.data.Len() + extra
	if need <= c.data.Cap() {
		return
	}
	newCap := c.data.Cap() * 2
	if newCap < need {
		newCap = need
	}
	grown := reflect.MakeSlice(c.data.Type(), c.data.Len(), newCap)
	reflect.Copy(grown, c.data)
	c.data = grown
}

func (c *column) growLen(n int) {
	c.reserve(n)
	c.data.SetLen(c.data.Len() + n)
}

func (c *column) truncate(newLen int) { c.data.SetLen(newLen) }

func (c *column) elem(i int) reflect.Value { return c.data.Index(i) }

// tableFlags are the derived capability/shape bits of §4.2.
type tableFlags struct {
	HasDtors    bool
	HasCtors    bool
	HasCopy     bool
	HasMove     bool
	IsPrefab    bool
	Disabled    bool
	HasRelation bool
	HasIsA      bool
	IsChild     bool
}

// Table is the columnar archetype table of §3/§4.2: an ordered,
// duplicate-free set of component ids (the "type"), one storage column per
// non-tag id, entity/back-pointer arrays, and the graph node connecting it
// to neighbouring tables.
type Table struct {
	world *World
	id    TableID

	typ       []EntityId // sorted, duplicate-free
	signature mask.Mask256

	storageIDs    []EntityId
	typeToStorage []int // len(typ); -1 for tag positions
	storageToType []int // len(columns); index back into typ
	columns       []*column
	records       []*ComponentRecord // len(typ), parallel to typ

	entities []EntityId
	infos    []*EntityInfo

	dirty    uint64
	colDirty []uint64 // len(columns)

	flags tableFlags

	graph graphNode
}

// Length returns the number of entities currently stored.
func (t *Table) Length() int { return len(t.entities) }

// Mask returns the table's fast-reject component-signature bitset.
func (t *Table) Mask() mask.Mask256 { return t.signature }

// Contains reports whether id is part of this table's type.
func (t *Table) Contains(id EntityId) bool {
	_, ok := t.columnIndexFor(id)
	if ok {
		return true
	}
	return t.typeIndexOf(id) >= 0
}

func (t *Table) typeIndexOf(id EntityId) int {
	lo, hi := 0, len(t.typ)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.typ[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(t.typ) && t.typ[lo] == id {
		return lo
	}
	return -1
}

func (t *Table) columnIndexFor(id EntityId) (int, bool) {
	ti := t.typeIndexOf(id)
	if ti < 0 {
		return 0, false
	}
	si := t.typeToStorage[ti]
	if si < 0 {
		return 0, false
	}
	return si, true
}

func (t *Table) bumpDirty() { t.dirty++ }

func (t *Table) bumpColumnDirty(si int) { t.colDirty[si]++ }

// buildTable constructs a fresh table for the given sorted, duplicate-free
// type, resolving (and registering, first-use, into) one ComponentRecord
// per id plus the storage layout (§4.2 "Create").
func buildTable(w *World, id TableID, typ []EntityId) *Table {
	t := &Table{world: w, id: id, typ: typ}

	t.records = make([]*ComponentRecord, len(typ))
	t.typeToStorage = make([]int, len(typ))
	sawChildOf := false
	var extraRecords []*ComponentRecord

	for i, cid := range typ {
		rec := w.componentRecord(cid, true)
		t.records[i] = rec
		if cid.Index() < 256 {
			t.signature.Mark(cid.Index())
		}

		// Pair ids additionally register against their relation- and
		// object-wildcard pseudo-records, so a wildcard term such as
		// (ChildOf, *) or (*, parent) can pivot off a real table cache
		// instead of scanning every table (§4.2 "plus one per distinct
		// relation and per distinct object in pair ids").
		if cid.IsPair() {
			rel, obj := SplitPair(cid)
			extraRecords = append(extraRecords,
				w.componentRecord(wildcardRelationID(uint32(rel)), true),
				w.componentRecord(wildcardObjectID(uint32(obj)), true))
			if rel == RelationChildOf {
				sawChildOf = true
			}
		}

		info := w.typeInfoFor(cid)
		isTag := info == nil || info.IsTag
		if isTag {
			t.typeToStorage[i] = -1
			continue
		}
		si := len(t.columns)
		t.typeToStorage[i] = si
		t.storageToType = append(t.storageToType, i)
		t.storageIDs = append(t.storageIDs, cid)
		col := newColumn(info)
		t.columns = append(t.columns, col)

		h := info.Hooks
		t.flags.HasCtors = t.flags.HasCtors || h.Ctor != nil
		t.flags.HasDtors = t.flags.HasDtors || h.Dtor != nil
		t.flags.HasCopy = t.flags.HasCopy || h.Copy != nil
		t.flags.HasMove = t.flags.HasMove || h.Move != nil

		if !isPair(cid) && cid == TagPrefab {
			t.flags.IsPrefab = true
		}
		if !isPair(cid) && cid == TagDisabled {
			t.flags.Disabled = true
		}
		if isPair(cid) {
			rel, _ := SplitPair(cid)
			t.flags.HasRelation = true
			if rel == RelationIsA {
				t.flags.HasIsA = true
			}
			if rel == RelationChildOf {
				t.flags.IsChild = true
			}
		}
	}
	for _, cid := range typ {
		if cid == TagPrefab {
			t.flags.IsPrefab = true
		}
		if cid == TagDisabled {
			t.flags.Disabled = true
		}
		if isPair(cid) {
			rel, _ := SplitPair(cid)
			t.flags.HasRelation = true
			if rel == RelationIsA {
				t.flags.HasIsA = true
			}
			if rel == RelationChildOf {
				t.flags.IsChild = true
			}
		}
	}

	// Every table carries a default (ChildOf, 0) record when it has no
	// parent pair of its own, so root-level (parent-less) tables still
	// participate in cascade-depth-0 grouping uniformly (§4.2).
	if !sawChildOf {
		extraRecords = append(extraRecords, w.componentRecord(NewPair(uint32(RelationChildOf), 0), true))
	}

	t.colDirty = make([]uint64, len(t.columns))
	t.graph = newGraphNode()

	for _, rec := range t.records {
		rec.addTable(t, false)
	}
	for _, rec := range extraRecords {
		rec.addTable(t, false)
	}
	t.records = append(t.records, extraRecords...)
	return t
}

func isPair(id EntityId) bool { return id.IsPair() }

// wildcardRelationID is the pseudo-id a pair's relation half registers
// against, matching a term shaped (relation, Wildcard).
func wildcardRelationID(relation uint32) EntityId {
	return NewPair(relation, uint32(Wildcard))
}

// wildcardObjectID is the pseudo-id a pair's object half registers against,
// matching a term shaped (Wildcard, object).
func wildcardObjectID(object uint32) EntityId {
	return NewPair(uint32(Wildcard), object)
}

// AppendNewEntity pushes entity/info onto the table, grows every column by
// one, and — when construct is true — invokes ctor then the on_add hook
// for each column (§4.2 "AppendNewEntity"). Returns the new row index.
func (t *Table) AppendNewEntity(entity EntityId, info *EntityInfo, construct bool) int {
	wasEmpty := len(t.entities) == 0
	row := len(t.entities)
	t.entities = append(t.entities, entity)
	t.infos = append(t.infos, info)
	info.table = t
	info.row = row

	for si, col := range t.columns {
		col.growLen(1)
		if construct {
			if ctor := col.info.Hooks.Ctor; ctor != nil {
				ctor(col.elem(row))
			}
		}
		t.bumpColumnDirty(si)
	}
	t.bumpDirty()

	if construct {
		t.fireRowEvent(EventOnAdd, row, 1)
	}
	if wasEmpty {
		t.world.queuePendingFill(t)
	}
	return row
}

// DeleteEntity removes the row, swapping the last row into its place
// unless it already is the last row. When destruct is true, on_remove then
// dtor/moveDtor run exactly as described in §4.2 "DeleteEntity".
func (t *Table) DeleteEntity(row int, destruct bool) {
	last := len(t.entities) - 1

	if destruct {
		t.fireRowEvent(EventOnRemove, row, 1)
	}

	if row == last {
		for si, col := range t.columns {
			if destruct {
				if dtor := col.info.Hooks.Dtor; dtor != nil {
					dtor(col.elem(row))
				}
			}
			col.truncate(col.len() - 1)
			t.bumpColumnDirty(si)
		}
	} else {
		for si, col := range t.columns {
			if destruct {
				if dtor := col.info.Hooks.Dtor; dtor != nil {
					dtor(col.elem(row))
				}
			}
			moveDtor := col.info.Hooks.MoveDtor
			if moveDtor != nil {
				moveDtor(col.elem(row), col.elem(last))
			} else {
				col.elem(row).Set(col.elem(last))
			}
			col.truncate(col.len() - 1)
			t.bumpColumnDirty(si)
		}
		t.entities[row] = t.entities[last]
		t.infos[row] = t.infos[last]
		t.infos[row].row = row
	}

	t.entities = t.entities[:last]
	t.infos = t.infos[:last]
	t.bumpDirty()

	if len(t.entities) == 0 {
		t.world.queuePendingEmpty(t)
	}
}

// moveEntity transfers the entity at srcRow in src to dst, walking both
// sorted storage-id sequences in lock-step as described in §4.2 "Move rows
// between tables", then deletes the source row. src and dst always describe
// the same live entity, so shared ids use moveCtor+dtor when a moveCtor
// exists, or a trivial memcpy (no ctor, no dtor) otherwise; copyCtor is
// never used here.
func moveEntity(src *Table, srcRow int, dst *Table, construct bool) int {
	entity := src.entities[srcRow]
	info := src.infos[srcRow]
	dstRow := len(dst.entities)
	dst.entities = append(dst.entities, entity)
	dst.infos = append(dst.infos, info)

	var addedIDs, removedIDs []EntityId

	si, di := 0, 0
	for si < len(src.columns) && di < len(dst.columns) {
		srcID := src.typ[src.storageToType[si]]
		dstID := dst.typ[dst.storageToType[di]]
		switch {
		case srcID == dstID:
			srcCol, dstCol := src.columns[si], dst.columns[di]
			dstCol.growLen(1)
			if moveCtor := dstCol.info.Hooks.MoveCtor; moveCtor != nil {
				moveCtor(dstCol.elem(dstRow), srcCol.elem(srcRow))
				if dtor := srcCol.info.Hooks.Dtor; dtor != nil {
					dtor(srcCol.elem(srcRow))
				}
			} else {
				dstCol.elem(dstRow).Set(srcCol.elem(srcRow))
			}
			dst.bumpColumnDirty(di)
			si++
			di++
		case srcID < dstID:
			removedIDs = append(removedIDs, removeUniqueSourceColumn(src, si, srcRow)...)
			si++
		default:
			addedIDs = append(addedIDs, addUniqueDestColumn(dst, di, dstRow, construct)...)
			di++
		}
	}
	for di < len(dst.columns) {
		addedIDs = append(addedIDs, addUniqueDestColumn(dst, di, dstRow, construct)...)
		di++
	}
	for si < len(src.columns) {
		removedIDs = append(removedIDs, removeUniqueSourceColumn(src, si, srcRow)...)
		si++
	}

	info.table = dst
	info.row = dstRow
	dst.bumpDirty()
	if dstRow == 0 {
		dst.world.queuePendingFill(dst)
	}
	if len(addedIDs) > 0 && dst.world != nil && dst.world.observable != nil {
		dst.world.observable.Emit(EventOnAdd, addedIDs, dst, dstRow, 1)
	}
	if len(removedIDs) > 0 && src.world != nil && src.world.observable != nil {
		src.world.observable.Emit(EventOnRemove, removedIDs, src, srcRow, 1)
	}

	src.DeleteEntity(srcRow, false) // data already consumed/dtor'd above; this just repacks src
	return dstRow
}

// addUniqueDestColumn handles a storage id present only in dst: ctor (when
// construct) then on_add.
func addUniqueDestColumn(dst *Table, di, row int, construct bool) []EntityId {
	col := dst.columns[di]
	col.growLen(1)
	if construct {
		if ctor := col.info.Hooks.Ctor; ctor != nil {
			ctor(col.elem(row))
		}
		if hook := col.info.Hooks.OnAdd; hook != nil {
			it := &Iterator{world: dst.world, table: dst, offset: row, count: 1}
			it.populateEntities()
			hook(it)
		}
	}
	dst.bumpColumnDirty(di)
	return []EntityId{dst.storageIDs[di]}
}

// removeUniqueSourceColumn handles a storage id present only in src:
// on_remove then dtor.
func removeUniqueSourceColumn(src *Table, si, row int) []EntityId {
	col := src.columns[si]
	if hook := col.info.Hooks.OnRemove; hook != nil {
		it := &Iterator{world: src.world, table: src, offset: row, count: 1}
		it.populateEntities()
		hook(it)
	}
	if dtor := col.info.Hooks.Dtor; dtor != nil {
		dtor(col.elem(row))
	}
	src.bumpColumnDirty(si)
	return []EntityId{src.storageIDs[si]}
}

// SortByEntity quicksorts the entity column in place, swapping every
// storage column atomically to preserve row alignment, and bumps the
// table's dirty counter (§4.2 "Sort by entity"). Query caches are left to
// rebuild lazily via the dirty monitor (§4.6).
func (t *Table) SortByEntity() {
	n := len(t.entities)
	if n < 2 {
		return
	}
	t.quicksort(0, n-1)
	t.bumpDirty()
	for si := range t.columns {
		t.bumpColumnDirty(si)
	}
}

func (t *Table) quicksort(lo, hi int) {
	if lo >= hi {
		return
	}
	pivot := t.entities[(lo+hi)/2]
	i, j := lo, hi
	for i <= j {
		for t.entities[i] < pivot {
			i++
		}
		for t.entities[j] > pivot {
			j--
		}
		if i <= j {
			t.swapRows(i, j)
			i++
			j--
		}
	}
	if lo < j {
		t.quicksort(lo, j)
	}
	if i < hi {
		t.quicksort(i, hi)
	}
}

func (t *Table) swapRows(a, b int) {
	if a == b {
		return
	}
	t.entities[a], t.entities[b] = t.entities[b], t.entities[a]
	t.infos[a], t.infos[b] = t.infos[b], t.infos[a]
	t.infos[a].row = a
	t.infos[b].row = b
	for _, col := range t.columns {
		ea := reflect.ValueOf(col.elem(a).Interface())
		col.elem(a).Set(col.elem(b))
		col.elem(b).Set(ea)
	}
}

// fireRowEvent invokes component-level hooks (on_add/on_remove) for the
// touched columns and emits the corresponding world event to observers.
func (t *Table) fireRowEvent(event EntityId, offset, count int) {
	it := &Iterator{world: t.world, table: t, offset: offset, count: count}
	it.populateEntities()
	for i, col := range t.columns {
		var hook func(*Iterator)
		switch event {
		case EventOnAdd:
			hook = col.info.Hooks.OnAdd
		case EventOnRemove:
			hook = col.info.Hooks.OnRemove
		case EventOnSet:
			hook = col.info.Hooks.OnSet
		}
		if hook != nil {
			hook(it)
		}
		_ = i
	}
	ids := make([]EntityId, 0, len(t.records))
	for _, r := range t.records {
		ids = append(ids, r.id)
	}
	if t.world != nil && t.world.observable != nil {
		t.world.observable.Emit(event, ids, t, offset, count)
	}
}

// columnFor panics (internal inconsistency, §7) if id has no storage on
// this table; callers must check Contains/has-storage first when the
// absence is a recoverable condition.
func (t *Table) columnFor(id EntityId) *column {
	si, ok := t.columnIndexFor(id)
	if !ok {
		panic(bark.AddTrace(errComponentNotInTable(id, t)))
	}
	return t.columns[si]
}
