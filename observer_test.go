package archon

import (
	"reflect"
	"testing"
)

func TestObservableEmitInvokesMatchingTrigger(t *testing.T) {
	o := newObservable()
	var got []EntityId
	o.Register(EventOnAdd, EntityId(10), func(it *Iterator) {
		got = append(got, it.Entities()...)
	})

	w := NewWorld(1)
	tbl := w.root
	o.Emit(EventOnAdd, []EntityId{EntityId(10)}, tbl, 0, 0)
	// No entities in root, but the trigger should still have fired once;
	// verify via a populated table instead.
	position := w.RegisterComponent("Position", reflect.TypeOf(Position{}), Hooks{})
	e := w.CreateEntity(position)
	info := w.infoOf(e)
	o.Emit(EventOnAdd, []EntityId{EntityId(10)}, info.table, 0, 1)

	if len(got) != 1 || got[0] != e {
		t.Errorf("trigger saw %v, want [%v]", got, e)
	}
}

func TestObservableUnregisterStopsDelivery(t *testing.T) {
	o := newObservable()
	fired := 0
	id := o.Register(EventOnAdd, EntityId(1), func(*Iterator) { fired++ })

	w := NewWorld(1)
	o.Emit(EventOnAdd, []EntityId{EntityId(1)}, w.root, 0, 0)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	o.Unregister(EventOnAdd, EntityId(1), id)
	o.Emit(EventOnAdd, []EntityId{EntityId(1)}, w.root, 0, 0)
	if fired != 1 {
		t.Errorf("fired after unregister = %d, want still 1", fired)
	}
}

// TestObserverDedupesAcrossMatchingTerms ensures a single Emit call that
// matches several of an observer's terms still invokes the user callback
// only once (§4.8).
func TestObserverDedupesAcrossMatchingTerms(t *testing.T) {
	w, position, velocity := newTestWorld(t)

	calls := 0
	f := NewFilter()
	_ = f.AddTerm(Term{ID: position})
	_ = f.AddTerm(Term{ID: velocity})
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	NewObserver(w, f, func(*Iterator) { calls++ })

	e := w.CreateEntity()
	// Each AddComponent is its own commit and emits its own OnAdd; the
	// single Emit carrying both ids is exercised directly below.
	_ = w.AddComponent(e, position)
	_ = w.AddComponent(e, velocity)

	if calls == 0 {
		t.Fatalf("observer callback never fired")
	}

	before := calls
	w.observable.Emit(EventOnAdd, []EntityId{position, velocity}, w.infoOf(e).table, 0, 1)
	if calls != before+1 {
		t.Errorf("a single Emit touching two matched terms should fire the callback once more, got %d extra calls", calls-before)
	}
}
