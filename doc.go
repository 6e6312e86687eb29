/*
Package archon implements the core of an archetype-based Entity-Component-System
runtime: columnar storage for entities grouped by the set of components they
carry, a graph of cached transitions between those archetypes, and a
filter/query engine with observer-driven cache maintenance.

Core Concepts:

  - EntityId: a packed, generational handle, optionally reinterpreted as a
    relationship pair.
  - Table: columnar storage for every entity sharing one archetype.
  - ComponentRecord: per-component bookkeeping, including the table cache a
    query's pivot term walks.
  - Query: a persistent match cache over a Filter, with optional cascade
    grouping and entity-id sorting.

Basic Usage:

	w := archon.NewWorld(1)
	position := w.RegisterComponent("Position", reflect.TypeOf(Position{}), archon.Hooks{})
	velocity := w.RegisterComponent("Velocity", reflect.TypeOf(Velocity{}), archon.Hooks{})

	e := w.CreateEntity(position, velocity)

	f := archon.NewFilter()
	f.AddTerm(archon.Term{ID: position})
	f.AddTerm(archon.Term{ID: velocity})
	q, _ := archon.NewQuery(w, f)

	q.Each(func(it *archon.Iterator) {
		pos := it.Column(0)
		vel := it.Column(1)
		for i := 0; i < it.Count(); i++ {
			p := pos.Index(i).Addr().Interface().(*Position)
			v := vel.Index(i).Addr().Interface().(*Velocity)
			p.X += v.X
			p.Y += v.Y
		}
	})

The public type-safe façade that wraps this core in generics, the pipeline
scheduler that dispatches systems in phases, and plugin lifecycle are left to
external collaborators; archon never embeds a scripting language and never
assumes a framework runtime.
*/
package archon
