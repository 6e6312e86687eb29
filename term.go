package archon

import "github.com/TheBitDrifter/mask"

// InOutKind describes a term's read/write direction. It is carried on the
// term only: the dirty monitor (query.go's checkTableMonitor) tracks every
// term's column regardless of InOut, so read-only terms are not excluded.
type InOutKind uint8

const (
	InOutDefault InOutKind = iota
	InOutNone              // write-only; e.g. an observer term with no data read
	In
	Out
	InOut
)

// maxFilterTerms is the hard cap on terms per filter (§4.5).
const maxFilterTerms = 16

// Term is one query predicate (§3 "Term"). Source defaults to the implicit
// This variable; Role == RolePair marks a relationship term. Cascade
// requests group-by-depth ordering over the ChildOf relation (§4.6
// "Grouping").
type Term struct {
	ID     EntityId
	Source EntityId
	First  EntityId
	Second EntityId
	InOut  InOutKind
	Role   EntityId
	Index  int

	Optional bool // recovered feature: term may be absent from a match
	Cascade  bool

	// Singleton marks a term whose Source is the world itself rather than
	// an entity (recovered feature, "Singleton/tag query shorthand"): the
	// id names a world-scoped bookkeeping component with no per-entity
	// storage, so it never constrains table matching and never occupies a
	// term-cache column. Set by finalizeTerm when Source is explicitly
	// given as PropertyNone.
	Singleton bool
}

// finalizeTerm runs the three-pass finalisation of §4.5: derive ids/flags
// from whichever of id/first/second/role was supplied, default the source
// to This, and synthesise the pair id back from first/second when only the
// relational form was given. Contradictory input (a supplied first/second
// that disagrees with an explicit pair id) is rejected.
func finalizeTerm(t *Term) error {
	if t.ID == 0 && (t.First != 0 || t.Second != 0) {
		if t.Second != 0 {
			t.Role = RolePair
			t.ID = NewPair(uint32(t.First), uint32(t.Second))
		} else {
			t.ID = t.First
		}
	}
	if t.ID == 0 && !t.Optional {
		return ErrTermContradiction{Term: *t}
	}

	if t.ID.IsPair() {
		t.Role = RolePair
		rel, obj := SplitPair(t.ID)
		if t.First != 0 && t.First != rel {
			return ErrTermContradiction{Term: *t}
		}
		if t.Second != 0 && t.Second != obj {
			return ErrTermContradiction{Term: *t}
		}
		t.First, t.Second = rel, obj
	}

	if t.Source == PropertyNone {
		t.Singleton = true
	} else if t.Source == 0 {
		t.Source = PropertyThis
	}
	if t.Cascade && t.First == 0 {
		t.First = RelationChildOf
	}
	if t.Role == RolePair && t.ID == 0 && (t.First != 0 || t.Second != 0) {
		t.ID = NewPair(uint32(t.First), uint32(t.Second))
	}
	return nil
}

// Filter is an ordered term list with small-inline capacity (§3 "Filter").
type Filter struct {
	terms    [4]Term
	overflow []Term
	count    int

	// required is the OR of every non-optional, non-singleton, non-pair
	// term's signature bit, finalised by Finalize. matchTable consults it
	// as an O(1) coarse reject before the sorted-id walk, the same way
	// warehouse's composite query nodes gate on archeMask.ContainsAll
	// before testing individual components.
	required mask.Mask256
}

// NewFilter builds an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// AddTerm appends a term, rejecting the filter once it would exceed
// maxFilterTerms.
func (f *Filter) AddTerm(t Term) error {
	if f.count >= maxFilterTerms {
		return ErrTooManyTerms{Count: f.count + 1}
	}
	t.Index = f.count
	if f.count < len(f.terms) {
		f.terms[f.count] = t
	} else {
		f.overflow = append(f.overflow, t)
	}
	f.count++
	return nil
}

// Count returns the number of terms in the filter.
func (f *Filter) Count() int { return f.count }

// Term returns the term at index i.
func (f *Filter) Term(i int) Term {
	if i < len(f.terms) {
		return f.terms[i]
	}
	return f.overflow[i-len(f.terms)]
}

func (f *Filter) setTerm(i int, t Term) {
	if i < len(f.terms) {
		f.terms[i] = t
	} else {
		f.overflow[i-len(f.terms)] = t
	}
}

// Terms returns every term as a plain slice, for callers that want to range
// over them (e.g. Observer registration).
func (f *Filter) Terms() []Term {
	out := make([]Term, f.count)
	for i := 0; i < f.count; i++ {
		out[i] = f.Term(i)
	}
	return out
}

// Finalize runs finalizeTerm over every term in place. A filter is valid iff
// every term finalises and the term count is within bounds (§4.5).
func (f *Filter) Finalize() error {
	if f.count > maxFilterTerms {
		return ErrTooManyTerms{Count: f.count}
	}
	var m mask.Mask256
	for i := 0; i < f.count; i++ {
		t := f.Term(i)
		if err := finalizeTerm(&t); err != nil {
			return err
		}
		f.setTerm(i, t)
		if !t.Optional && !t.Singleton && t.Role != RolePair && t.ID.Index() < 256 {
			m.Mark(t.ID.Index())
		}
	}
	f.required = m
	return nil
}

// resolveMatchID returns the id a term should be looked up by in the
// component-record registry: a wildcard pair term resolves to its
// relation- or object-wildcard pseudo-id (table.go's wildcardRelationID /
// wildcardObjectID) so pivot selection and table matching can still use a
// real table cache instead of a full scan (recovered feature, "Relationship
// wildcard matching").
func resolveMatchID(t Term) EntityId {
	if t.Role == RolePair {
		if t.First == Wildcard {
			return wildcardObjectID(uint32(t.Second))
		}
		if t.Second == Wildcard {
			return wildcardRelationID(uint32(t.First))
		}
	}
	return t.ID
}

// selectPivot picks the filter term whose component record has the fewest
// candidate tables (§4.5 "Iteration picks a pivot term"). Optional terms
// never serve as pivot, since a missing match there does not exclude a
// table. Returns -1 if every term is optional.
func selectPivot(w *World, f *Filter) (index int, record *ComponentRecord) {
	best, bestRecord := -1, (*ComponentRecord)(nil)
	for i := 0; i < f.Count(); i++ {
		term := f.Term(i)
		if term.Optional || term.Singleton {
			continue
		}
		rec := w.componentRecord(resolveMatchID(term), false)
		if rec == nil {
			return i, nil
		}
		if bestRecord == nil || rec.matchCount() < bestRecord.matchCount() {
			best, bestRecord = i, rec
		}
	}
	return best, bestRecord
}

// matchTerm reports whether table satisfies term, and if so the storage
// column index to cache for data access (-1 if the term is tag-shaped and
// carries no column). Wildcard pair terms scan the table's type for any
// pair matching the fixed half.
func matchTerm(term Term, table *Table) (col int, matched bool) {
	if term.Role == RolePair && (term.First == Wildcard || term.Second == Wildcard) {
		for _, id := range table.typ {
			if !id.IsPair() {
				continue
			}
			rel, obj := SplitPair(id)
			if term.First != Wildcard && rel != term.First {
				continue
			}
			if term.Second != Wildcard && obj != term.Second {
				continue
			}
			if si, ok := table.columnIndexFor(id); ok {
				return si, true
			}
			return -1, true
		}
		return -1, false
	}

	if si, ok := table.columnIndexFor(term.ID); ok {
		return si, true
	}
	if table.Contains(term.ID) {
		return -1, true
	}
	return -1, false
}

// matchTable reports whether every non-optional term of f matches table,
// and fills columns[i] with each matched term's storage column index (-1
// when the term is tag-shaped, optional-and-absent, or singleton). Checks
// f.required against the table's signature first: a table missing any bit
// the filter needs is rejected in O(1), before the sorted-id walk below
// ever runs (DOMAIN STACK, "O(1) coarse reject/accept").
func matchTable(f *Filter, table *Table, columns []int) bool {
	if !table.Mask().ContainsAll(f.required) {
		return false
	}
	for i := 0; i < f.Count(); i++ {
		term := f.Term(i)
		if term.Singleton {
			// A world-scoped bookkeeping component, not per-entity data:
			// every table matches, and there is no column to cache.
			columns[i] = -1
			continue
		}
		si, ok := matchTerm(term, table)
		if !ok {
			if term.Optional {
				columns[i] = -1
				continue
			}
			return false
		}
		columns[i] = si
	}
	return true
}
