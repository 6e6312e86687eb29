package archon

// chunkSize is the fixed slot count per sparse-index chunk (§4.1).
const chunkSize = 4096

// sparseChunk holds, for each of its chunkSize local offsets, the dense
// position of the corresponding live-or-recycled entry plus one (zero means
// "never touched").
type sparseChunk struct {
	slots [chunkSize]uint32
}

// SparseSet is the paged generational sparse index of §4.1: a sparse map
// from a 32-bit key (an EntityId's index half) to a dense, densely-packed
// value array. Live entries occupy dense[0:count]; the tail dense[count:]
// holds recycled slots, each still addressable by its sparse chunk so
// Ensure can find and reactivate a specific key.
type SparseSet[T any] struct {
	chunks []*sparseChunk
	dense  []EntityId
	values []T
	count  int
}

// NewSparseSet constructs an empty paged sparse index.
func NewSparseSet[T any]() *SparseSet[T] {
	return &SparseSet[T]{}
}

// Len returns the number of live entries.
func (s *SparseSet[T]) Len() int {
	return s.count
}

func (s *SparseSet[T]) chunkFor(key uint32, create bool) *sparseChunk {
	idx := int(key / chunkSize)
	if idx >= len(s.chunks) {
		if !create {
			return nil
		}
		grown := make([]*sparseChunk, idx+1)
		copy(grown, s.chunks)
		s.chunks = grown
	}
	ch := s.chunks[idx]
	if ch == nil && create {
		ch = &sparseChunk{}
		s.chunks[idx] = ch
	}
	return ch
}

func (s *SparseSet[T]) setSparse(key uint32, pos int) {
	ch := s.chunkFor(key, true)
	ch.slots[key%chunkSize] = uint32(pos) + 1
}

// posFor resolves a key to its dense position without checking liveness.
// Returns false if the chunk was never allocated or the slot was never
// touched.
func (s *SparseSet[T]) posFor(key uint32) (int, bool) {
	ch := s.chunkFor(key, false)
	if ch == nil {
		return 0, false
	}
	slot := ch.slots[key%chunkSize]
	if slot == 0 {
		return 0, false
	}
	return int(slot - 1), true
}

// Get returns the value for id iff id is alive: its dense slot is within
// the live region and the stored generation matches exactly (§4.1 "get(id)
// checks the generation against the dense entry").
func (s *SparseSet[T]) Get(id EntityId) (*T, bool) {
	pos, ok := s.posFor(id.Index())
	if !ok || pos >= s.count {
		return nil, false
	}
	if s.dense[pos].Generation() != id.Generation() {
		return nil, false
	}
	return &s.values[pos], true
}

// Contains reports whether id is currently alive.
func (s *SparseSet[T]) Contains(id EntityId) bool {
	_, ok := s.Get(id)
	return ok
}

// activateTail moves the dense/value pair currently at position pos into
// the live region by swapping it with the boundary slot at s.count, fixing
// up both slots' sparse pointers, then extends the live region by one.
// Used by both NewIndex (pos is already == s.count, a no-op swap) and
// Ensure (pos may be anywhere in the recycled tail).
func (s *SparseSet[T]) activateTail(pos int, generation uint16, value T) EntityId {
	if pos != s.count {
		s.dense[pos], s.dense[s.count] = s.dense[s.count], s.dense[pos]
		s.values[pos], s.values[s.count] = s.values[s.count], s.values[pos]
		s.setSparse(s.dense[pos].Index(), pos)
	}
	key := s.dense[s.count].Index()
	id := NewEntityId(key, generation)
	s.dense[s.count] = id
	s.values[s.count] = value
	s.setSparse(key, s.count)
	s.count++
	return id
}

// NewIndex allocates a fresh key: reuses the most recently recycled slot
// if one is available, otherwise appends a brand-new key at the end of the
// dense array (§4.1 "new_index appends").
func (s *SparseSet[T]) NewIndex(value T) EntityId {
	if s.count < len(s.dense) {
		next := s.dense[s.count].Generation() + 1
		if next == 0 {
			next = 1 // never reuse generation 0 (reserved for "never allocated")
		}
		return s.activateTail(s.count, next, value)
	}
	key := uint32(len(s.dense))
	s.dense = append(s.dense, NewEntityId(key, 0))
	s.values = append(s.values, value)
	s.setSparse(key, len(s.dense)-1)
	return s.activateTail(s.count, 1, value)
}

// Ensure inserts value at the caller-chosen key (id.Index()), creating
// placeholder dead slots for any skipped keys in between so a later
// NewIndex cannot collide with them (§4.1 "ensure(id) inserts at a chosen
// id, swapping a recycled slot to the tail if needed"). If the key is
// already live, its value is overwritten in place and its existing id
// (generation included) is returned unless a non-zero generation was
// requested and conflicts.
func (s *SparseSet[T]) Ensure(id EntityId, value T) (EntityId, bool) {
	key := id.Index()
	if pos, ok := s.posFor(key); ok {
		if pos < s.count {
			existing := s.dense[pos]
			if id.Generation() != 0 && existing.Generation() != id.Generation() {
				return existing, false
			}
			s.values[pos] = value
			return existing, true
		}
		gen := id.Generation()
		if gen == 0 {
			gen = s.dense[pos].Generation()
			if gen == 0 {
				gen = 1
			}
		}
		return s.activateTail(pos, gen, value), true
	}

	for k := uint32(len(s.dense)); k < key; k++ {
		s.dense = append(s.dense, NewEntityId(k, 0))
		var zero T
		s.values = append(s.values, zero)
		s.setSparse(k, len(s.dense)-1)
	}
	s.dense = append(s.dense, NewEntityId(key, 0))
	s.values = append(s.values, value)
	pos := len(s.dense) - 1
	s.setSparse(key, pos)

	gen := id.Generation()
	if gen == 0 {
		gen = 1
	}
	return s.activateTail(pos, gen, value), true
}

// Remove deletes id from the live region, swapping the last live entry
// into its place and bumping the generation of the now-dead slot so any
// stale copy of id fails future Get/Contains calls (§8 invariant 9).
func (s *SparseSet[T]) Remove(id EntityId) bool {
	pos, ok := s.posFor(id.Index())
	if !ok || pos >= s.count {
		return false
	}
	if s.dense[pos].Generation() != id.Generation() {
		return false
	}

	last := s.count - 1
	if pos != last {
		s.dense[pos], s.dense[last] = s.dense[last], s.dense[pos]
		s.values[pos], s.values[last] = s.values[last], s.values[pos]
		s.setSparse(s.dense[pos].Index(), pos)
	}

	dead := s.dense[last]
	gen := dead.Generation() + 1
	if gen == 0 {
		gen = 1
	}
	s.dense[last] = NewEntityId(dead.Index(), gen)
	var zero T
	s.values[last] = zero
	s.setSparse(dead.Index(), last)
	s.count--
	return true
}
