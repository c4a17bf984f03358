// Package kvstore persists small named blobs. The application keeps exactly
// two of them (settings and history); backends are a directory of files,
// SQLite, Postgres, or memory.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when the key holds no blob.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a keyed blob store. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateKey rejects keys that are empty, too long, or could escape a
// storage directory.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("kvstore: invalid key %q", key)
	}
	return nil
}

// Open creates the store for backend. path is the directory (file) or
// database file (sqlite); dsn is the Postgres connection string.
func Open(backend Backend, path, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch backend {
	case BackendFile, "":
		s, err = NewFileStore(path)
	case BackendSQLite:
		s, err = OpenSQLite(path)
	case BackendPostgres:
		s, err = OpenPostgres(dsn)
	case BackendMemory:
		s = NewMemoryStore()
	default:
		err = fmt.Errorf("kvstore: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
