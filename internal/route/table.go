package route

import (
	"fmt"
	"sort"
)

// Table is the read-only route lookup shared by all requests. It is never
// modified after NewTable returns.
type Table struct {
	routes map[Key]*Route
	keys   []Key
}

// NewTable creates a table from routes keyed by their Key.
func NewTable(routes map[Key]*Route) *Table {
	copied := make(map[Key]*Route, len(routes))
	keys := make([]Key, 0, len(routes))
	for key, r := range routes {
		copied[key] = r
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return &Table{routes: copied, keys: keys}
}

// Get retrieves a route by key
func (t *Table) Get(key Key) (*Route, error) {
	r, exists := t.routes[key]
	if !exists {
		return nil, fmt.Errorf("hook '%s' not found", key)
	}
	return r, nil
}

// Keys returns all route keys in sorted order
func (t *Table) Keys() []Key {
	keys := make([]Key, len(t.keys))
	copy(keys, t.keys)
	return keys
}

// Len returns the number of routes
func (t *Table) Len() int {
	return len(t.routes)
}
