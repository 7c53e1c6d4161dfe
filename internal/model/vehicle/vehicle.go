package vehicle

// Vehicle is the slice of the vehicle registry this service consumes: a
// stable reference plus an optional display name. Registration, ownership
// records, and owner authorization live in the registry collaborator and are
// assumed verified before a request reaches the chat engine.
type Vehicle struct {
	Ref  string `json:"ref"`
	Name string `json:"name,omitempty"`
}

// Registry exposes vehicle lookup for HTTP handlers.
type Registry interface {
	FindByRef(ref string) (Vehicle, bool)
}

// MemoryStore implements Registry with an in-memory slice, suitable for
// deployments where the known tag set is supplied at startup.
type MemoryStore struct {
	items []Vehicle
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied vehicles.
func NewMemoryStore(items []Vehicle) *MemoryStore {
	return &MemoryStore{items: append([]Vehicle(nil), items...)}
}

// FindByRef looks up a vehicle by its tag reference.
func (s *MemoryStore) FindByRef(ref string) (Vehicle, bool) {
	for _, item := range s.items {
		if item.Ref == ref {
			return item, true
		}
	}
	return Vehicle{}, false
}

// OpenRegistry accepts any non-empty reference. Used when the real registry
// validates refs upstream and the chat engine only needs the identifier.
type OpenRegistry struct{}

// FindByRef returns a bare vehicle for any non-empty ref.
func (OpenRegistry) FindByRef(ref string) (Vehicle, bool) {
	if ref == "" {
		return Vehicle{}, false
	}
	return Vehicle{Ref: ref}, true
}
