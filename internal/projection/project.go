// Package projection filters entity data down to the fields a membership key
// may see.
package projection

import "tenantcore/pkg/domain"

// VisibleFields computes the set of field ids the given membership key may
// see on entities of the type: every field whose explicit fieldVisibility
// entry lists the key, plus, when the type's visibleTo includes the key,
// every field with no explicit entry (type-level visibility is the default
// for unconstrained fields).
func VisibleFields(t domain.EntityType, key string) map[string]struct{} {
	typeVisible := t.VisibleToKey(key)
	out := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		keys, constrained := t.FieldVisibility[f.ID]
		if constrained {
			for _, k := range keys {
				if k == key {
					out[f.ID] = struct{}{}
					break
				}
			}
			continue
		}
		if typeVisible {
			out[f.ID] = struct{}{}
		}
	}
	return out
}

// Project returns a copy of the entity with Data restricted to the fields
// visible to the membership key. All other attributes pass through unchanged.
func Project(e domain.Entity, t domain.EntityType, key string) domain.Entity {
	return restrict(e, VisibleFields(t, key))
}

// ProjectAny restricts the entity to the union of fields visible to any of
// the given membership keys. Callers holding a key inherit every lower-order
// key, so their view is the union across the inherited set.
func ProjectAny(e domain.Entity, t domain.EntityType, keys []string) domain.Entity {
	visible := make(map[string]struct{}, len(t.Fields))
	for _, key := range keys {
		for id := range VisibleFields(t, key) {
			visible[id] = struct{}{}
		}
	}
	return restrict(e, visible)
}

func restrict(e domain.Entity, visible map[string]struct{}) domain.Entity {
	data := make(map[string]any, len(visible))
	for id, value := range e.Data {
		if _, ok := visible[id]; ok {
			data[id] = value
		}
	}
	e.Data = data
	return e
}
