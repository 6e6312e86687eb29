package archon

import "testing"

func TestWorkerSliceCoversWholeRangeExactlyOnce(t *testing.T) {
	w, position, _ := newTestWorld(t)
	const n = 10
	var all []EntityId
	for i := 0; i < n; i++ {
		all = append(all, w.CreateEntity(position))
	}

	tbl := w.infoOf(all[0]).table
	it := newMatchIterator(w, tbl, 0, tbl.Length(), []EntityId{position}, []int{0})

	const workers = 3
	seen := map[EntityId]int{}
	for worker := 0; worker < workers; worker++ {
		sub := it.WorkerSlice(worker, workers)
		for _, e := range sub.Entities() {
			seen[e]++
		}
	}

	if len(seen) != n {
		t.Fatalf("worker slices covered %d distinct entities, want %d", len(seen), n)
	}
	for e, count := range seen {
		if count != 1 {
			t.Errorf("entity %v visited %d times across worker slices, want 1", e, count)
		}
	}
}

func TestWorkerSliceGivesRemainderToLowIndexWorkers(t *testing.T) {
	w, position, _ := newTestWorld(t)
	for i := 0; i < 7; i++ {
		w.CreateEntity(position)
	}
	e := w.CreateEntity(position)
	tbl := w.infoOf(e).table
	it := newMatchIterator(w, tbl, 0, tbl.Length(), []EntityId{position}, []int{0})

	counts := make([]int, 3)
	for worker := 0; worker < 3; worker++ {
		counts[worker] = it.WorkerSlice(worker, 3).Count()
	}
	// 8 entities over 3 workers: 3, 3, 2 (remainder to the lowest indices).
	want := []int{3, 3, 2}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts = %v, want %v", counts, want)
		}
	}
}

func TestTermIteratorSkipsPrefabAndDisabled(t *testing.T) {
	w, position, _ := newTestWorld(t)
	w.CreateEntity(position)
	w.CreateEntity(position, TagPrefab)
	w.CreateEntity(position, TagDisabled)

	rec := w.componentRecord(position, false)
	ti := newTermIterator(rec, true)

	count := 0
	for tbl := ti.next(); tbl != nil; tbl = ti.next() {
		if tbl.flags.IsPrefab || tbl.flags.Disabled {
			t.Errorf("term iterator yielded a prefab/disabled table: %v", tbl.typ)
		}
		count++
	}
	if count != 1 {
		t.Errorf("term iterator yielded %d tables, want 1 (plain position table only)", count)
	}
}
