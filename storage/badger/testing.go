package badger

import "github.com/poiesic/pagewise/storage"

// NewMemoryStore opens an in-memory store for tests.
func NewMemoryStore(schema storage.Schema) (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newStore(backend, schema)
}
