package archon

// Trigger is one registered callback, routed by event and component id
// (§4.8 "An Observable is a sparse map event → map<component_id,
// record<map<trigger_id, Trigger>>>").
type Trigger struct {
	id       EntityId
	callback func(it *Iterator)
}

// Observable is the world's event fan-out hub. Built-in events
// (EventTableEmpty, EventTableFill, EventOnAdd, EventOnRemove, EventOnSet)
// are emitted by table.go/world.go at the points described in §4.8.
type Observable struct {
	triggers      map[EntityId]map[EntityId]map[EntityId]*Trigger // event -> component -> triggerID -> Trigger
	nextTriggerID EntityId
	emitSeq       uint64
}

func newObservable() *Observable {
	return &Observable{triggers: make(map[EntityId]map[EntityId]map[EntityId]*Trigger)}
}

// Register adds a trigger fired whenever event is emitted carrying
// component in its id set, returning an id usable with Unregister.
func (o *Observable) Register(event, component EntityId, callback func(it *Iterator)) EntityId {
	o.nextTriggerID++
	id := o.nextTriggerID
	byComponent := o.triggers[event]
	if byComponent == nil {
		byComponent = make(map[EntityId]map[EntityId]*Trigger)
		o.triggers[event] = byComponent
	}
	byTrigger := byComponent[component]
	if byTrigger == nil {
		byTrigger = make(map[EntityId]*Trigger)
		byComponent[component] = byTrigger
	}
	byTrigger[id] = &Trigger{id: id, callback: callback}
	return id
}

// Unregister removes a previously registered trigger.
func (o *Observable) Unregister(event, component, triggerID EntityId) {
	if byComponent := o.triggers[event]; byComponent != nil {
		if byTrigger := byComponent[component]; byTrigger != nil {
			delete(byTrigger, triggerID)
		}
	}
}

// Emit walks, for each id in ids, the triggers registered against event and
// that id, invoking each with an iterator pointing at [offset, offset+count)
// of table (§4.8 "Emitting an event ... walks, for each id, the per-event
// per-component triggers and invokes each with an iterator pointing at that
// table"). The iterator is built lazily and shared across every trigger
// invoked by this call.
func (o *Observable) Emit(event EntityId, ids []EntityId, table *Table, offset, count int) {
	byComponent := o.triggers[event]
	if len(byComponent) == 0 {
		return
	}
	o.emitSeq++

	var it *Iterator
	for _, id := range ids {
		byTrigger := byComponent[id]
		if len(byTrigger) == 0 {
			continue
		}
		if it == nil {
			it = &Iterator{world: table.world, table: table, offset: offset, count: count}
			it.populateEntities()
		}
		for _, tr := range byTrigger {
			tr.callback(it)
		}
	}
}

// Observer bundles a filter and a single user callback, routed through one
// trigger per term, de-duplicated per event so a single world-level event
// that matches several of the observer's terms still fires the callback at
// most once (§4.8 "the observer de-duplicates via a per-event unique id").
type Observer struct {
	world    *World
	filter   *Filter
	callback func(it *Iterator)
	lastSeq  map[EntityId]uint64
}

// NewObserver registers callback against OnAdd/OnRemove/OnSet for every term
// id in filter.
func NewObserver(w *World, filter *Filter, callback func(it *Iterator)) *Observer {
	obs := &Observer{world: w, filter: filter, callback: callback, lastSeq: make(map[EntityId]uint64)}
	for _, term := range filter.Terms() {
		id := resolveMatchID(term)
		w.observable.Register(EventOnAdd, id, obs.dedup(EventOnAdd))
		w.observable.Register(EventOnRemove, id, obs.dedup(EventOnRemove))
		w.observable.Register(EventOnSet, id, obs.dedup(EventOnSet))
	}
	return obs
}

func (o *Observer) dedup(event EntityId) func(it *Iterator) {
	return func(it *Iterator) {
		seq := o.world.observable.emitSeq
		if o.lastSeq[event] == seq {
			return
		}
		o.lastSeq[event] = seq
		o.callback(it)
	}
}
