package archon

import (
	"errors"
	"reflect"
	"testing"
)

func TestStageDeferredOpsApplyOnDrain(t *testing.T) {
	w, position, velocity := newTestWorld(t)
	e := w.CreateEntity(position)

	stage := w.Stage(0)
	stage.beginDefer()
	stage.Add(e, velocity)
	stage.Set(e, position, reflect.ValueOf(Position{X: 5, Y: 6}))

	if w.HasComponent(e, velocity) {
		t.Fatalf("deferred Add should not apply before the stage drains")
	}

	stage.endDefer()

	if !w.HasComponent(e, velocity) {
		t.Errorf("deferred Add should apply once the stage drains")
	}
	pos, ok := w.GetComponent(e, position)
	if !ok || pos.Interface().(Position) != (Position{X: 5, Y: 6}) {
		t.Errorf("deferred Set should apply on drain, got %+v ok=%v", pos, ok)
	}
}

// TestStageSetSnapshotsPayload is scenario S5-adjacent: a deferred Set must
// copy its payload out immediately, since the caller may reuse the backing
// value before the stage drains.
func TestStageSetSnapshotsPayload(t *testing.T) {
	w, position, _ := newTestWorld(t)
	e := w.CreateEntity(position)

	stage := w.Stage(0)
	stage.beginDefer()

	value := Position{X: 1, Y: 1}
	stage.Set(e, position, reflect.ValueOf(value))
	value.X = 999 // mutate the caller's copy after enqueueing

	stage.endDefer()

	pos, ok := w.GetComponent(e, position)
	if !ok || pos.Interface().(Position) != (Position{X: 1, Y: 1}) {
		t.Errorf("deferred Set picked up a later mutation to the caller's value: %+v", pos)
	}
}

// TestStageDrainSkipsOpsForDeadEntity is §7's "Deferred-operation failures":
// an op targeting an entity deleted earlier in the same drain is silently
// skipped rather than erroring.
func TestStageDrainSkipsOpsForDeadEntity(t *testing.T) {
	w, position, _ := newTestWorld(t)
	e := w.CreateEntity(position)

	stage := w.Stage(0)
	stage.beginDefer()
	stage.Delete(e)
	stage.Set(e, position, reflect.ValueOf(Position{X: 1, Y: 1})) // enqueued after the delete

	stage.endDefer() // must not panic or error

	if w.Alive(e) {
		t.Errorf("entity should be dead after the deferred delete drained")
	}
}

// expectReadonlyPanic runs fn and fails the test unless it panics with
// ErrWorldReadonly, mirroring the panic-based enforcement every mutation
// entry point now shares.
func expectReadonlyPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("direct world mutation during a readonly window should panic")
			return
		}
		if err, ok := r.(error); !ok || !errors.Is(err, ErrWorldReadonly) {
			t.Errorf("expected panic(ErrWorldReadonly), got %v", r)
		}
	}()
	fn()
}

func TestBeginEndReadonlyRoutesThroughStages(t *testing.T) {
	w, position, velocity := newTestWorld(t)
	e := w.CreateEntity(position)

	w.BeginReadonly()
	expectReadonlyPanic(t, func() { _ = w.AddComponent(e, velocity) })

	w.Stage(0).Add(e, velocity)
	if w.HasComponent(e, velocity) {
		t.Fatalf("a stage add inside the readonly window should not apply yet")
	}

	w.EndReadonly()
	if !w.HasComponent(e, velocity) {
		t.Errorf("stage add should apply once the readonly window ends")
	}
}

func TestCreateNamedEntityDuringReadonlyWindow(t *testing.T) {
	w, _, _ := newTestWorld(t)
	w.BeginReadonly()
	e := w.CreateNamedEntity(0, "inside-readonly")
	w.EndReadonly()

	if !w.Alive(e) {
		t.Fatalf("CreateNamedEntity should succeed even while the world is readonly")
	}
	resolved, ok := w.ResolveByName(0, "inside-readonly")
	if !ok || resolved != e {
		t.Errorf("ResolveByName = (%v, %v), want (%v, true)", resolved, ok, e)
	}
}
