package transform

import (
	"context"
)

// EntityStore creates or finds the entities records refer to.
type EntityStore interface {
	EnsureLoadCase(ctx context.Context, name string) (int64, error)
	EnsureStory(ctx context.Context, name string) (int64, error)
	EnsureElement(ctx context.Context, elementType, name string) (int64, error)
}

type elementKey struct {
	elementType string
	name        string
}

// EntityResolver caches load case, story and element ids for one import
// run so each entity hits the store once. It is not safe for concurrent use.
type EntityResolver struct {
	loadCases map[string]int64
	stories   map[string]int64
	elements  map[elementKey]int64
	lookups   int
}

// NewEntityResolver creates an empty resolver.
func NewEntityResolver() *EntityResolver {
	r := &EntityResolver{}
	r.Reset()
	return r
}

// LoadCase returns the id of the load case with this exact name.
func (r *EntityResolver) LoadCase(ctx context.Context, st EntityStore, name string) (int64, error) {
	if id, ok := r.loadCases[name]; ok {
		return id, nil
	}
	r.lookups++
	id, err := st.EnsureLoadCase(ctx, name)
	if err != nil {
		return 0, err
	}
	r.loadCases[name] = id
	return id, nil
}

// Story returns the id of the named story.
func (r *EntityResolver) Story(ctx context.Context, st EntityStore, name string) (int64, error) {
	if id, ok := r.stories[name]; ok {
		return id, nil
	}
	r.lookups++
	id, err := st.EnsureStory(ctx, name)
	if err != nil {
		return 0, err
	}
	r.stories[name] = id
	return id, nil
}

// Element returns the id of the element (elementType, name).
func (r *EntityResolver) Element(ctx context.Context, st EntityStore, elementType, name string) (int64, error) {
	key := elementKey{elementType: elementType, name: name}
	if id, ok := r.elements[key]; ok {
		return id, nil
	}
	r.lookups++
	id, err := st.EnsureElement(ctx, elementType, name)
	if err != nil {
		return 0, err
	}
	r.elements[key] = id
	return id, nil
}

// Reset forgets every cached id. Call it after a transaction that created
// entities was rolled back.
func (r *EntityResolver) Reset() {
	r.loadCases = make(map[string]int64)
	r.stories = make(map[string]int64)
	r.elements = make(map[elementKey]int64)
}

// Lookups returns how many store calls the resolver has made.
func (r *EntityResolver) Lookups() int { return r.lookups }
