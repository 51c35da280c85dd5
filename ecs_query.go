package grok

import (
	"reflect"
)

// Queries visit every entity whose archetype holds all required components.
// Component types passed as optionals may be missing, in which case the
// callback receives nil for them. Returning false from the callback stops
// the iteration. Order is unspecified.
type Query1[A any] struct{ ecs *Ecs }
type Query2[A, B any] struct{ ecs *Ecs }
type Query3[A, B, C any] struct{ ecs *Ecs }

func MakeQuery1[A any](cmd *Commands) Query1[A]       { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B] { return Query2[A, B]{ecs: cmd.app.ecs} }
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] {
	return Query3[A, B, C]{ecs: cmd.app.ecs}
}

type column[T any] struct {
	data    []T
	present bool
}

func (c column[T]) at(r row) *T {
	if !c.present {
		return nil
	}
	return &c.data[r]
}

// lookupColumn finds the storage for T in arch. ok is false when T is missing
// and not optional, meaning the archetype does not match.
func lookupColumn[T any](ecs *Ecs, arch *archetype, opt set[componentId]) (col column[T], ok bool) {
	id := identifyComponent[T](ecs)
	if data, found := arch.componentData[id]; found {
		return column[T]{data: data.([]T), present: true}, true
	}
	_, optional := opt[id]
	return column[T]{}, optional
}

func (q Query1[A]) Map(m func(EntityId, *A) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	for _, arch := range q.ecs.archetypes {
		a, ok := lookupColumn[A](q.ecs, arch, opt)
		if !ok {
			continue
		}
		for eid, r := range arch.entities {
			if !m(eid, a.at(r)) {
				return
			}
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	for _, arch := range q.ecs.archetypes {
		a, okA := lookupColumn[A](q.ecs, arch, opt)
		b, okB := lookupColumn[B](q.ecs, arch, opt)
		if !okA || !okB {
			continue
		}
		for eid, r := range arch.entities {
			if !m(eid, a.at(r), b.at(r)) {
				return
			}
		}
	}
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	for _, arch := range q.ecs.archetypes {
		a, okA := lookupColumn[A](q.ecs, arch, opt)
		b, okB := lookupColumn[B](q.ecs, arch, opt)
		c, okC := lookupColumn[C](q.ecs, arch, opt)
		if !okA || !okB || !okC {
			continue
		}
		for eid, r := range arch.entities {
			if !m(eid, a.at(r), b.at(r), c.at(r)) {
				return
			}
		}
	}
}

// Get returns the entity's A component, or nil when the entity is gone or
// does not have one.
func (q Query1[A]) Get(eid EntityId) *A {
	archId, ok := q.ecs.entityIndex[eid]
	if !ok {
		return nil
	}
	arch := q.ecs.archetypes[archId]
	a, ok := lookupColumn[A](q.ecs, arch, nil)
	if !ok {
		return nil
	}
	return a.at(arch.entities[eid])
}

func identifyOptionals(ecs *Ecs, components ...any) set[componentId] {
	res := make(set[componentId], len(components))
	for _, c := range components {
		res[ecs.getComponentId(componentType(c))] = struct{}{}
	}
	return res
}

func identifyComponent[T any](ecs *Ecs) componentId {
	return ecs.getComponentId(reflect.TypeFor[T]())
}
