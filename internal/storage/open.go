package storage

import "fmt"

// Backend names accepted by Open.
const (
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Open opens a database of the named backend at path. The memory backend
// ignores path.
func Open(backend, path string) (DB, error) {
	switch backend {
	case BackendBadger, "":
		return NewBadger(path)
	case BackendLevelDB:
		return NewLevelDB(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
