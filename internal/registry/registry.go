// Package registry provides a concurrent, string keyed cache used for values that are
// expensive to build and immutable once built, such as provider models.
package registry

import "github.com/alphadose/haxmap"

// Registry is a concurrent map of named values.
type Registry[T any] interface {
	Get(name string) (T, bool)
	Add(name string, value T)
	// GetOrAdd returns the existing value for name or stores the value produced by valueFn.
	// The boolean reports whether the value was already present.
	GetOrAdd(name string, valueFn func() T) (T, bool)
	Del(name string)
	Len() int
	Names() []string
}

type registry[T any] struct {
	values *haxmap.Map[string, T]
}

// New creates an empty registry.
func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) {
	r.values.Set(name, value)
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(name, valueFn)
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

func (r *registry[T]) Names() []string {
	names := make([]string, 0, r.values.Len())
	r.values.ForEach(func(name string, _ T) bool {
		names = append(names, name)
		return true
	})
	return names
}
