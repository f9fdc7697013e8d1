// Package types holds small generic containers shared across packages.
package types

// Set is a generic hash set for comparable values.
//
// It is backed by a map[T]struct{}, so membership checks and insertion are
// constant time. Set is mutable and not safe for concurrent mutation.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set holding the given values.
//
// Parameters:
//   - values: zero or more elements to start the set with. Duplicates collapse.
//
// Returns:
//   - A Set containing the distinct values.
func NewSet[T comparable](values ...T) Set[T] {
	s := make(Set[T], len(values))
	s.Add(values...)
	return s
}

// Add inserts one or more values, ignoring those already present.
//
// This method modifies the Set in place.
//
// Parameters:
//   - values: elements to add to the set.
func (s Set[T]) Add(values ...T) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

// Insert adds a single value and reports whether it was new.
//
// Parameters:
//   - v: the element to add.
//
// Returns:
//   - true if v was absent and has been added, false if it was already present.
func (s Set[T]) Insert(v T) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}
