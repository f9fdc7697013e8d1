package types

// DefaultMap is a map wrapper that materializes a value from a factory the
// first time a missing key is read.
//
// Example:
//
//	seen := types.NewDefaultMap[string, int](func() int { return 0 })
//	seen.Set("alice", seen.Get("alice")+1)
type DefaultMap[K comparable, V any] struct {
	data       map[K]V  // stored key-value pairs
	newDefault func() V // produces the value for a key read before it was set
}

// NewDefaultMap creates an empty DefaultMap.
//
// Parameters:
//   - newDefault: function that produces the value for a missing key.
//
// Returns:
//   - A DefaultMap with no keys.
func NewDefaultMap[K comparable, V any](newDefault func() V) DefaultMap[K, V] {
	return DefaultMap[K, V]{
		data:       make(map[K]V),
		newDefault: newDefault,
	}
}

// Get returns the value stored under key.
//
// If the key is missing, newDefault is called once, its result is stored
// under key and returned.
//
// Parameters:
//   - key: the key to read.
//
// Returns:
//   - The stored value, or a freshly stored default.
func (d *DefaultMap[K, V]) Get(key K) V {
	if v, ok := d.data[key]; ok {
		return v
	}

	v := d.newDefault()
	d.data[key] = v
	return v
}

// Set stores val under key, replacing any previous value.
//
// Parameters:
//   - key: the key to assign.
//   - val: the value to store.
func (d *DefaultMap[K, V]) Set(key K, val V) {
	d.data[key] = val
}
