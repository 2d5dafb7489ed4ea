package badger

import "github.com/poiesic/sheetvec/storage"

// NewMemoryIndex creates an in-memory vector index and run repository for testing.
// Returns index, runs, backend, and error.
// Caller must close the backend when done.
func NewMemoryIndex(opts ...IndexOption) (storage.VectorIndex, storage.RunRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}

	index, err := NewIndex(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	return index, NewRunRepository(backend), backend, nil
}
