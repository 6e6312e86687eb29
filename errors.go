package archon

import "fmt"

// Recoverable boundary errors (§7 "Invalid argument"): rejected at the
// boundary with a sentinel return, never mutating state. Internal
// inconsistencies are a different class entirely (see errComponentNotInTable
// below, and its bark.AddTrace call sites) and never surface as one of
// these.

// ErrInvalidEntity is returned by AddComponent, RemoveComponent and
// SetComponent when given an entity id that is not currently alive. Other
// operations treat a dead id as a no-op or report false.
type ErrInvalidEntity struct {
	Entity EntityId
}

func (e ErrInvalidEntity) Error() string {
	return fmt.Sprintf("entity is not alive: %v", e.Entity)
}

// ErrComponentNotFound is returned when a read targets a component the
// entity does not carry.
type ErrComponentNotFound struct {
	Entity    EntityId
	Component EntityId
}

func (e ErrComponentNotFound) Error() string {
	return fmt.Sprintf("entity %v does not carry component %v", e.Entity, e.Component)
}

// ErrTermContradiction is returned by filter finalisation (§4.5) when a
// term's id, first/second, and role fields cannot be reconciled.
type ErrTermContradiction struct {
	Term Term
}

func (e ErrTermContradiction) Error() string {
	return fmt.Sprintf("term does not finalise: %+v", e.Term)
}

// ErrTooManyTerms is returned when a filter is built with more than the
// maximum of 16 terms (§4.5).
type ErrTooManyTerms struct {
	Count int
}

func (e ErrTooManyTerms) Error() string {
	return fmt.Sprintf("filter has %d terms, maximum is %d", e.Count, maxFilterTerms)
}

// ErrSortCascadeConflict is returned by Query.SetOrderBy when the query has
// a Cascade term — sort_by_entity and cascade grouping together is an
// explicitly rejected combination (SPEC_FULL §9 open question).
var ErrSortCascadeConflict = fmt.Errorf("query cannot combine sort_by_entity with a cascade term")

// ErrWorldReadonly is the panic value (wrapped by bark.AddTrace) raised when
// a caller attempts a direct world mutation while the world is inside a
// readonly window instead of going through a stage (§5).
var ErrWorldReadonly = fmt.Errorf("world is in a readonly window; mutate through a stage")

// errComponentNotInTable reports an internal-inconsistency condition: code
// asked a table for a column it does not have. Per §7 this is a programming
// error, not a recoverable one — callers pass the result straight into
// bark.AddTrace and panic, never return it to an external caller.
func errComponentNotInTable(id EntityId, t *Table) error {
	return fmt.Errorf("table %d does not carry component %v", t.id, id)
}
