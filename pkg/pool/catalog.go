package pool

import (
	"github.com/ajitpratap0/spawnpool/pkg/errors"
)

// Catalog supplies what a pool needs to know about its template: the
// settings it runs with, how to create a hidden instance and how to
// release an instance's resources.
type Catalog[K comparable] interface {
	// Settings returns the settings of key, or false if key is not a
	// poolable template.
	Settings(key K) (Settings, bool)
	// Create returns a new instance of key.
	Create(key K) (Object[K], error)
	// Destroy releases obj, an instance of key. It is called at most once
	// per object.
	Destroy(key K, obj Object[K])
}

// Template describes one kind of pooled object for a TemplateSet.
type Template[K comparable] struct {
	Key K
	// Settings is read when the template's pool is created; a nil value
	// marks the template as not poolable.
	Settings *Settings
	New      func(key K) (Object[K], error)
	// Destroy is optional.
	Destroy func(key K, obj Object[K])
}

// TemplateSet is a Catalog backed by registered templates.
type TemplateSet[K comparable] struct {
	templates map[K]*Template[K]
}

// NewTemplateSet creates a set holding templates. Later duplicates replace
// earlier ones.
func NewTemplateSet[K comparable](templates ...Template[K]) *TemplateSet[K] {
	s := &TemplateSet[K]{templates: make(map[K]*Template[K], len(templates))}
	for i := range templates {
		t := templates[i]
		s.templates[t.Key] = &t
	}
	return s
}

// Register adds t to the set.
func (s *TemplateSet[K]) Register(t Template[K]) error {
	if _, exists := s.templates[t.Key]; exists {
		return errors.New(errors.ErrorTypeValidation, "template already registered").
			WithDetail("template", t.Key)
	}
	s.templates[t.Key] = &t
	return nil
}

// Lookup returns the template registered for key.
func (s *TemplateSet[K]) Lookup(key K) (*Template[K], bool) {
	t, ok := s.templates[key]
	return t, ok
}

// Len returns the number of registered templates.
func (s *TemplateSet[K]) Len() int {
	return len(s.templates)
}

// Settings implements Catalog.
func (s *TemplateSet[K]) Settings(key K) (Settings, bool) {
	t, ok := s.templates[key]
	if !ok || t.Settings == nil {
		return Settings{}, false
	}
	return t.Settings.Copy(), true
}

// Create implements Catalog.
func (s *TemplateSet[K]) Create(key K) (Object[K], error) {
	t, ok := s.templates[key]
	if !ok || t.New == nil {
		return nil, errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "template has no constructor").
			WithDetail("template", key)
	}
	return t.New(key)
}

// Destroy implements Catalog.
func (s *TemplateSet[K]) Destroy(key K, obj Object[K]) {
	if t, ok := s.templates[key]; ok && t.Destroy != nil {
		t.Destroy(key, obj)
	}
}
