package archon

import "reflect"

// RowHook runs against a single column element addressed by a settable
// reflect.Value (Design Notes: "void* component columns with width erased"
// — modelled here as typed columns driven entirely through the hook table
// rather than raw pointers, since Go has no portable void* arithmetic).
type RowHook func(elem reflect.Value)

// CopyHook runs against a destination/source element pair.
type CopyHook func(dst, src reflect.Value)

// Hooks bundles the lifecycle callbacks a component type may supply (§3
// "ComponentTypeInfo", §6 "Component hooks"). Any subset may be left nil;
// SynthesizeHooks fills in the deterministic defaults.
type Hooks struct {
	Ctor RowHook
	Dtor RowHook

	Copy CopyHook
	Move CopyHook

	CopyCtor CopyHook
	MoveCtor CopyHook
	MoveDtor CopyHook

	OnAdd    func(it *Iterator)
	OnRemove func(it *Iterator)
	OnSet    func(it *Iterator)
}

// SynthesizeHooks fills in compound hooks the caller did not supply,
// deterministically, per §6:
//
//	copyCtor := ctor+copy
//	moveCtor := ctor+move
//	moveDtor := move+dtor, or move, or otherwise a value copy (memcpy) that
//	            zeroes the source; Table.DeleteEntity runs the dtor on the
//	            overwritten row before calling it
//	ctor     := zero-fill, when any of dtor/copy/move is provided
//
// The core never calls a destructor it did not pair with a constructor. A
// type with no ctor and no dtor/copy/move (a trivial, memcpy-only type)
// gets no ctor, copyCtor or moveCtor; its moveDtor is the value-copy
// fallback.
func SynthesizeHooks(h Hooks) Hooks {
	if h.Ctor == nil && (h.Dtor != nil || h.Copy != nil || h.Move != nil) {
		h.Ctor = func(elem reflect.Value) {
			elem.Set(reflect.Zero(elem.Type()))
		}
	}
	if h.CopyCtor == nil && h.Ctor != nil && h.Copy != nil {
		ctor, copyFn := h.Ctor, h.Copy
		h.CopyCtor = func(dst, src reflect.Value) {
			ctor(dst)
			copyFn(dst, src)
		}
	}
	if h.MoveCtor == nil && h.Ctor != nil && h.Move != nil {
		ctor, moveFn := h.Ctor, h.Move
		h.MoveCtor = func(dst, src reflect.Value) {
			ctor(dst)
			moveFn(dst, src)
		}
	}
	if h.MoveDtor == nil {
		switch {
		case h.Move != nil && h.Dtor != nil:
			moveFn, dtor := h.Move, h.Dtor
			h.MoveDtor = func(dst, src reflect.Value) {
				moveFn(dst, src)
				dtor(src)
			}
		case h.Move != nil:
			h.MoveDtor = h.Move
		default:
			// memcpy fallback: trivially relocate by value-copy then zero
			// the source. The relocated value is still live in dst, so no
			// dtor runs here.
			h.MoveDtor = func(dst, src reflect.Value) {
				dst.Set(src)
				src.Set(reflect.Zero(src.Type()))
			}
		}
	}
	return h
}

// ComponentTypeInfo describes one component's shape (§3).
type ComponentTypeInfo struct {
	Type  reflect.Type
	Hooks Hooks
	// IsTag marks a zero-size, storage-free component: it contributes to a
	// table's type but not to its storage columns (§3 "storage id").
	IsTag bool
}

func newComponentTypeInfo(t reflect.Type, hooks Hooks) *ComponentTypeInfo {
	isTag := t == nil || t.Size() == 0
	return &ComponentTypeInfo{Type: t, Hooks: SynthesizeHooks(hooks), IsTag: isTag}
}

// tableList is an indexed membership set supporting O(1) add/remove,
// standing in for the intrusive doubly-linked lists described in §3/§4.3
// (Design Notes: "express as arena-allocated nodes addressed by compact
// indices" — here a slice plus a position index serves the same purpose
// without raw pointer aliasing).
type tableList struct {
	tables []*Table
	index  map[TableID]int
}

func newTableList() tableList {
	return tableList{index: make(map[TableID]int)}
}

func (l *tableList) add(t *Table) {
	if _, ok := l.index[t.id]; ok {
		return
	}
	l.index[t.id] = len(l.tables)
	l.tables = append(l.tables, t)
}

func (l *tableList) remove(t *Table) {
	pos, ok := l.index[t.id]
	if !ok {
		return
	}
	last := len(l.tables) - 1
	l.tables[pos] = l.tables[last]
	l.index[l.tables[pos].id] = pos
	l.tables = l.tables[:last]
	delete(l.index, t.id)
}

func (l *tableList) contains(t *Table) bool {
	_, ok := l.index[t.id]
	return ok
}

// ComponentRecord is the per-component-id bookkeeping record of §3: a
// table cache split into empty/non-empty lists, the resolved type info
// (nil for plain relations/tags carrying no data), and — only for a pair
// record shaped (ChildOf, parent) — a name index used by §4.4's
// child-of name resolution.
type ComponentRecord struct {
	id       EntityId
	typeInfo *ComponentTypeInfo

	nonEmpty tableList
	empty    tableList

	// names maps a child's name to its entity id, populated only on the
	// (ChildOf, parent) record for that specific parent.
	names map[string]EntityId
}

func newComponentRecord(id EntityId) *ComponentRecord {
	return &ComponentRecord{
		id:       id,
		nonEmpty: newTableList(),
		empty:    newTableList(),
	}
}

// matchCount returns the number of tables (empty and non-empty) that carry
// this component — used by the pivot selector in §4.5.
func (r *ComponentRecord) matchCount() int {
	return len(r.nonEmpty.tables) + len(r.empty.tables)
}

// onTableFill moves t from the empty list to the non-empty list.
func (r *ComponentRecord) onTableFill(t *Table) {
	r.empty.remove(t)
	r.nonEmpty.add(t)
}

// onTableEmpty moves t from the non-empty list to the empty list.
func (r *ComponentRecord) onTableEmpty(t *Table) {
	r.nonEmpty.remove(t)
	r.empty.add(t)
}

func (r *ComponentRecord) addTable(t *Table, nonEmpty bool) {
	if nonEmpty {
		r.nonEmpty.add(t)
	} else {
		r.empty.add(t)
	}
}

func (r *ComponentRecord) removeTable(t *Table) {
	r.nonEmpty.remove(t)
	r.empty.remove(t)
}

// resolveOrCreateName looks up a child entity by name under this
// (ChildOf, parent) record; it never registers one (setName does that).
func (r *ComponentRecord) resolveOrCreateName(name string) (EntityId, bool) {
	if r.names == nil {
		return 0, false
	}
	id, ok := r.names[name]
	return id, ok
}

func (r *ComponentRecord) setName(name string, child EntityId) {
	if r.names == nil {
		r.names = make(map[string]EntityId)
	}
	r.names[name] = child
}

func (r *ComponentRecord) clearName(name string) {
	delete(r.names, name)
}
