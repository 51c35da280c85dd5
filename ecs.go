package grok

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"sync"
)

type EntityId uint64
type archetypeId uint64
type archetypeKey []componentId
type componentId uint32
type row int
type set[T comparable] = map[T]struct{}

// Ecs stores components in archetypes: one typed slice per component type,
// one row per entity. An entity moves between archetypes when its component
// set changes.
type Ecs struct {
	archetypes  map[archetypeId]*archetype
	entityIndex map[EntityId]archetypeId

	idLock       sync.Mutex
	nextEntity   EntityId
	componentIds map[reflect.Type]componentId
	componentTys []reflect.Type
}

type archetype struct {
	id            archetypeId
	key           archetypeKey
	entities      map[EntityId]row
	componentData map[componentId]any
	free          []row
}

func MakeEcs() Ecs {
	return Ecs{
		archetypes:   make(map[archetypeId]*archetype),
		entityIndex:  make(map[EntityId]archetypeId),
		componentIds: make(map[reflect.Type]componentId),
	}
}

func (ecs *Ecs) addEntity(components ...any) EntityId {
	return ecs.insertEntity(ecs.nextEntityId(), components...)
}

func (ecs *Ecs) insertEntity(entityId EntityId, components ...any) EntityId {
	arch := ecs.getOrMakeArchetype(ecs.getArchetypeKey(components...))
	r := ecs.reserveRow(arch)
	for _, c := range components {
		ecs.writeComponent(arch, r, c)
	}
	arch.entities[entityId] = r
	ecs.entityIndex[entityId] = arch.id
	return entityId
}

func (ecs *Ecs) hasEntity(entityId EntityId) bool {
	_, ok := ecs.entityIndex[entityId]
	return ok
}

func (ecs *Ecs) removeEntity(entityId EntityId) {
	if !ecs.hasEntity(entityId) {
		return
	}
	ecs.releaseRow(entityId)
}

func (ecs *Ecs) addComponents(entityId EntityId, components ...any) {
	if !ecs.hasEntity(entityId) {
		return
	}
	src := ecs.archetypes[ecs.entityIndex[entityId]]
	dst := ecs.getOrMakeArchetype(mergeArchetypeKeys(src.key, ecs.getArchetypeKey(components...)))
	dstRow := src.entities[entityId]
	if dst != src {
		dstRow = ecs.moveEntity(entityId, src, dst)
	}
	for _, c := range components {
		ecs.writeComponent(dst, dstRow, c)
	}
}

func (ecs *Ecs) removeComponents(entityId EntityId, components ...any) {
	if !ecs.hasEntity(entityId) {
		return
	}
	src := ecs.archetypes[ecs.entityIndex[entityId]]

	drop := make(set[componentId])
	for _, c := range components {
		drop[ecs.getComponentId(componentType(c))] = struct{}{}
	}
	key := make(archetypeKey, 0, len(src.key))
	for _, id := range src.key {
		if _, ok := drop[id]; !ok {
			key = append(key, id)
		}
	}
	if len(key) == len(src.key) {
		return
	}
	ecs.moveEntity(entityId, src, ecs.getOrMakeArchetype(key))
}

// moveEntity copies the components both archetypes share into a new row of
// dst and frees the entity's row in src.
func (ecs *Ecs) moveEntity(entityId EntityId, src, dst *archetype) row {
	srcRow := src.entities[entityId]
	dstRow := ecs.reserveRow(dst)
	for _, id := range dst.key {
		if data, ok := src.componentData[id]; ok {
			copyCell(dst.componentData[id], dstRow, data, srcRow)
		}
	}
	ecs.releaseRow(entityId)
	dst.entities[entityId] = dstRow
	ecs.entityIndex[entityId] = dst.id
	return dstRow
}

func (ecs *Ecs) writeComponent(arch *archetype, r row, component any) {
	value := reflect.ValueOf(component)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	id := ecs.getComponentId(value.Type())
	setCell(arch.componentData[id], r, value)
}

// releaseRow zeroes the entity's row so stale values (and the handles they
// may hold) are not observable through reuse, then recycles it.
func (ecs *Ecs) releaseRow(entityId EntityId) {
	arch := ecs.archetypes[ecs.entityIndex[entityId]]
	r := arch.entities[entityId]
	for _, id := range arch.key {
		zeroCell(arch.componentData[id], r)
	}
	arch.free = append(arch.free, r)
	delete(arch.entities, entityId)
	delete(ecs.entityIndex, entityId)
}

func (ecs *Ecs) reserveRow(arch *archetype) row {
	if n := len(arch.free); n > 0 {
		r := arch.free[n-1]
		arch.free = arch.free[:n-1]
		return r
	}
	r := row(len(arch.entities))
	for _, id := range arch.key {
		arch.componentData[id] = growColumn(arch.componentData[id], ecs.componentTys[id])
	}
	return r
}

func (ecs *Ecs) getOrMakeArchetype(key archetypeKey) *archetype {
	id := getArchetypeId(key)
	if arch, ok := ecs.archetypes[id]; ok {
		return arch
	}
	arch := &archetype{
		id:            id,
		key:           key,
		entities:      make(map[EntityId]row),
		componentData: make(map[componentId]any, len(key)),
	}
	for _, cid := range key {
		arch.componentData[cid] = makeColumn(ecs.componentTys[cid])
	}
	ecs.archetypes[id] = arch
	return arch
}

// getArchetypeKey returns the sorted, deduplicated component ids of components.
func (ecs *Ecs) getArchetypeKey(components ...any) archetypeKey {
	key := make(archetypeKey, 0, len(components))
	for _, c := range components {
		key = append(key, ecs.getComponentId(componentType(c)))
	}
	return normalizeArchetypeKey(key)
}

func componentType(component any) reflect.Type {
	t := reflect.TypeOf(component)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("component should be a struct or a pointer to a struct, got %v", reflect.TypeOf(component)))
	}
	return t
}

func mergeArchetypeKeys(a, b archetypeKey) archetypeKey {
	merged := make(archetypeKey, 0, len(a)+len(b))
	merged = append(merged, a...)
	return normalizeArchetypeKey(append(merged, b...))
}

func normalizeArchetypeKey(key archetypeKey) archetypeKey {
	slices.Sort(key)
	return slices.Compact(key)
}

func getArchetypeId(key archetypeKey) archetypeId {
	hash := fnv.New64a()
	var b [4]byte
	for _, id := range key {
		binary.LittleEndian.PutUint32(b[:], uint32(id))
		hash.Write(b[:])
	}
	return archetypeId(hash.Sum64())
}

func (ecs *Ecs) nextEntityId() EntityId {
	ecs.idLock.Lock()
	defer ecs.idLock.Unlock()
	id := ecs.nextEntity
	ecs.nextEntity++
	return id
}

func (ecs *Ecs) getComponentId(t reflect.Type) componentId {
	ecs.idLock.Lock()
	defer ecs.idLock.Unlock()
	if id, ok := ecs.componentIds[t]; ok {
		return id
	}
	id := componentId(len(ecs.componentTys))
	ecs.componentIds[t] = id
	ecs.componentTys = append(ecs.componentTys, t)
	return id
}

func (ecs *Ecs) getComponentType(id componentId) reflect.Type {
	if int(id) < len(ecs.componentTys) {
		return ecs.componentTys[id]
	}
	panic(fmt.Sprintf("component id %d is not registered", id))
}

// Component columns are []T held as any and addressed by row.

func makeColumn(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 1).Interface()
}

func growColumn(col any, elem reflect.Type) any {
	return reflect.Append(reflect.ValueOf(col), reflect.Zero(elem)).Interface()
}

func setCell(col any, r row, v reflect.Value) {
	reflect.ValueOf(col).Index(int(r)).Set(v)
}

func copyCell(dst any, dstRow row, src any, srcRow row) {
	setCell(dst, dstRow, reflect.ValueOf(src).Index(int(srcRow)))
}

func zeroCell(col any, r row) {
	reflect.ValueOf(col).Index(int(r)).SetZero()
}
