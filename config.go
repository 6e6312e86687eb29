package archon

// Config holds process-wide knobs set once at startup (§6 "System API" —
// the caller supplies thread-run/thread-sync hooks up front; allocator hooks
// are left to the Go runtime, which is always infallible from the core's
// point of view, matching §7's OOM policy).
var Config config = config{
	NameCapacity: 4096,
	ThreadRun:    runWorkerInline,
	ThreadSync:   func() {},
}

type config struct {
	// NameCapacity bounds the component/tag/relation name table (registry.go).
	NameCapacity int

	// ThreadRun dispatches a worker slice; the default runs it inline on
	// the calling goroutine. A caller wiring in a real worker pool
	// replaces this once at startup (§5 "Worker dispatch is delegated to
	// an external thread-run hook").
	ThreadRun func(worker int, fn func())

	// ThreadSync blocks until every dispatched ThreadRun call for the
	// current readonly window has returned.
	ThreadSync func()
}

// SetThreadHooks installs the worker dispatch hooks.
func (c *config) SetThreadHooks(run func(worker int, fn func()), sync func()) {
	c.ThreadRun = run
	c.ThreadSync = sync
}

func runWorkerInline(worker int, fn func()) { fn() }
