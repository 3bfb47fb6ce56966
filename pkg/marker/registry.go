// Package marker tracks fiducial markers seen by the camera: which distinct
// ids have been observed, in what order, and where the dominant one sits.
package marker

// Registry is an append-only, first-seen-ordered set of marker ids.
// It is not safe for concurrent use; the Monitor is its only writer and
// publishes copies.
type Registry struct {
	ids  []int
	seen map[int]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[int]struct{})}
}

// Add records id and reports whether it was new.
func (r *Registry) Add(id int) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.ids = append(r.ids, id)
	return true
}

// Contains reports whether id has been seen.
func (r *Registry) Contains(id int) bool {
	_, ok := r.seen[id]
	return ok
}

// Len returns the number of distinct ids.
func (r *Registry) Len() int { return len(r.ids) }

// IDs returns a copy of the ids in first-seen order.
func (r *Registry) IDs() []int {
	return append([]int(nil), r.ids...)
}
