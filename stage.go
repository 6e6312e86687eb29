package archon

import "reflect"

// OpKind enumerates the deferred-operation kinds of §4.9.
type OpKind uint8

const (
	OpNew OpKind = iota
	OpAdd
	OpRemove
	OpSet
	OpMut
	OpModified
	OpDelete
	OpClear
	OpEnable
	OpDisable
)

// operation is one queued deferred mutation: {kind, entity, id, value}
// (§3 "Stage").
type operation struct {
	kind   OpKind
	entity EntityId
	id     EntityId
	value  reflect.Value
}

// Stage is a per-worker deferred-operation queue (§4.9). The world owns one
// stage per worker plus the main stage (index 0). Payloads for Set/Mut are
// plain reflect.Value copies kept alive by the Go garbage collector for the
// life of the queue — standing in for the source's stage-owned bump arena,
// which exists there only to outlive C's manual allocation lifetime; Go's
// GC already guarantees the payload survives until drain, so no separate
// arena type is needed (Design Notes, "pair the queue with its arena").
type Stage struct {
	world      *World
	index      int
	deferDepth int
	ops        []operation
}

func newStage(w *World, index int) *Stage {
	return &Stage{world: w, index: index}
}

// beginDefer increments the defer depth; while > 0, every mutation through
// this stage enqueues instead of applying directly.
func (s *Stage) beginDefer() { s.deferDepth++ }

// endDefer decrements the defer depth, draining the queue once it reaches
// zero (§4.9 "end_defer at depth zero drains the queue").
func (s *Stage) endDefer() {
	if s.deferDepth > 0 {
		s.deferDepth--
	}
	if s.deferDepth == 0 {
		s.drain()
	}
}

// suspendReadonly snapshots and zeroes the defer depth so a single-threaded
// internal caller can mutate directly, returning the depth to restore
// (§4.9 "suspend_readonly").
func (s *Stage) suspendReadonly() int {
	saved := s.deferDepth
	s.deferDepth = 0
	return saved
}

// resumeReadonly restores a depth captured by suspendReadonly.
func (s *Stage) resumeReadonly(saved int) { s.deferDepth = saved }

func (s *Stage) deferred() bool { return s.deferDepth > 0 }

// New allocates an entity immediately (so the caller has a usable id right
// away) and, if deferred, enqueues its initial component adds rather than
// placing it into its destination archetype synchronously.
func (s *Stage) New(ids ...EntityId) EntityId {
	if !s.deferred() {
		return s.world.CreateEntity(ids...)
	}
	entity, _ := s.world.allocPendingEntity()
	for _, id := range ids {
		s.ops = append(s.ops, operation{kind: OpAdd, entity: entity, id: id})
	}
	return entity
}

// Add enqueues (or applies immediately, outside a defer window) a component
// add.
func (s *Stage) Add(entity, id EntityId) {
	if !s.deferred() {
		_ = s.world.AddComponent(entity, id)
		return
	}
	s.ops = append(s.ops, operation{kind: OpAdd, entity: entity, id: id})
}

// Remove enqueues (or applies immediately) a component remove.
func (s *Stage) Remove(entity, id EntityId) {
	if !s.deferred() {
		_ = s.world.RemoveComponent(entity, id)
		return
	}
	s.ops = append(s.ops, operation{kind: OpRemove, entity: entity, id: id})
}

// Set enqueues (or applies immediately) an overwrite of entity's value for
// id. The payload is copied out of value via the component's CopyCtor hook
// when present (a direct SetComponent uses the Copy hook), so it is safe for
// the caller to reuse/mutate value's backing storage immediately after this
// call returns.
func (s *Stage) Set(entity, id EntityId, value reflect.Value) {
	if !s.deferred() {
		_ = s.world.SetComponent(entity, id, value)
		return
	}
	s.ops = append(s.ops, operation{kind: OpSet, entity: entity, id: id, value: snapshotPayload(s.world, id, value)})
}

func snapshotPayload(w *World, id EntityId, value reflect.Value) reflect.Value {
	info := w.typeInfoFor(id)
	copyValue := reflect.New(value.Type()).Elem()
	if info != nil {
		if ctor := info.Hooks.CopyCtor; ctor != nil {
			ctor(copyValue, value)
			return copyValue
		}
	}
	copyValue.Set(value)
	return copyValue
}

// Modified enqueues (or fires immediately) an OnSet notification for a
// value the caller already mutated in place via GetComponent.
func (s *Stage) Modified(entity, id EntityId) {
	if !s.deferred() {
		s.world.Modified(entity, id)
		return
	}
	s.ops = append(s.ops, operation{kind: OpModified, entity: entity, id: id})
}

// Delete enqueues (or applies immediately) an entity deletion.
func (s *Stage) Delete(entity EntityId) {
	if !s.deferred() {
		s.world.DeleteEntity(entity)
		return
	}
	s.ops = append(s.ops, operation{kind: OpDelete, entity: entity})
}

// Clear enqueues (or applies immediately) the removal of every component
// from entity, without releasing its id.
func (s *Stage) Clear(entity EntityId) {
	if !s.deferred() {
		s.world.clearEntity(entity)
		return
	}
	s.ops = append(s.ops, operation{kind: OpClear, entity: entity})
}

// Enable/Disable toggle the TagDisabled marker.
func (s *Stage) Enable(entity EntityId)  { s.enqueueOrApply(OpEnable, entity, TagDisabled) }
func (s *Stage) Disable(entity EntityId) { s.enqueueOrApply(OpDisable, entity, TagDisabled) }

func (s *Stage) enqueueOrApply(kind OpKind, entity, id EntityId) {
	if !s.deferred() {
		s.applyOne(operation{kind: kind, entity: entity, id: id})
		return
	}
	s.ops = append(s.ops, operation{kind: kind, entity: entity, id: id})
}

// drain replays every queued operation through the non-deferred path, in
// enqueue order (§4.9 "replay in enqueue order"). An operation targeting an
// entity that died earlier in the same drain (or was already dead) is
// silently skipped (§7 "Deferred-operation failures"), tracked the same way
// Commands.Flush tracks entities it has already deleted this drain.
func (s *Stage) drain() {
	ops := s.ops
	s.ops = nil
	deleted := make(map[EntityId]bool)

	for _, op := range ops {
		if deleted[op.entity] || !s.world.Alive(op.entity) {
			continue
		}
		s.applyOne(op)
		if op.kind == OpDelete {
			deleted[op.entity] = true
		}
	}
}

func (s *Stage) applyOne(op operation) {
	switch op.kind {
	case OpAdd:
		_ = s.world.AddComponent(op.entity, op.id)
	case OpRemove:
		_ = s.world.RemoveComponent(op.entity, op.id)
	case OpSet, OpMut:
		_ = s.world.SetComponent(op.entity, op.id, op.value)
	case OpModified:
		s.world.Modified(op.entity, op.id)
	case OpDelete:
		s.world.DeleteEntity(op.entity)
	case OpClear:
		s.world.clearEntity(op.entity)
	case OpEnable:
		_ = s.world.RemoveComponent(op.entity, op.id)
	case OpDisable:
		_ = s.world.AddComponent(op.entity, op.id)
	}
}
