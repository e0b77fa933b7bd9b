package session

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/opencontroller/padbridge/pkg/types"
)

const (
	bucketSessions = "sessions"
	bucketMeta     = "meta"

	keyLastSession = "last_session"
)

// Store persists session documents as JSON blobs in bbolt buckets.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the session database at path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketSessions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes a session document under its name.
func (s *Store) SaveSession(cfg *types.SessionConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: session has no name", types.ErrConfigValidation)
	}
	if cfg.SchemaVersion != types.SchemaVersion {
		return fmt.Errorf("%w: refusing to save version %d", types.ErrSchemaVersion, cfg.SchemaVersion)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(cfg.Name), data)
	})
}

// LoadSession reads the named session. An unknown name fails with
// ErrSessionNotFound; a document with a different schema version fails
// with ErrSchemaVersion and is left untouched on disk.
func (s *Store) LoadSession(name string) (*types.SessionConfig, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSessions)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, name)
		}
		data = append(data, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Version check before full decode so an incompatible document is
	// rejected without half-applying it.
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if probe.SchemaVersion != types.SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", types.ErrSchemaVersion, probe.SchemaVersion, types.SchemaVersion)
	}

	var cfg types.SessionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &cfg, nil
}

// DeleteSession removes the named session.
func (s *Store) DeleteSession(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", types.ErrSessionNotFound, name)
		}
		return b.Delete([]byte(name))
	})
}

// ListSessions returns all saved session names.
func (s *Store) ListSessions() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// SetLastSession records the most recently used session name.
func (s *Store) SetLastSession(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put([]byte(keyLastSession), []byte(name))
	})
}

// LastSession returns the most recently used session name, or empty if
// none was recorded.
func (s *Store) LastSession() (string, error) {
	var name string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketMeta)).Get([]byte(keyLastSession)); v != nil {
			name = string(v)
		}
		return nil
	})
	return name, err
}
