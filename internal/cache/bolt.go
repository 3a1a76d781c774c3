package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Cache persisted in a bbolt file, one bucket per namespace.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
	clock  Clock
	policy Policy
}

type boltEnvelope struct {
	Value    string    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// OpenBoltDB opens (or creates) the cache file at path.
func OpenBoltDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	return db, nil
}

// NewBolt returns a cache stored in the namespace bucket of db.
func NewBolt(db *bolt.DB, namespace string, opts ...Option) (*Bolt, error) {
	o := buildOptions(opts)
	b := &Bolt{db: db, bucket: []byte(namespace), clock: o.clock, policy: o.policy}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create cache bucket %s: %w", namespace, err)
	}
	return b, nil
}

// Get returns the value for key if present and not expired.
func (b *Bolt) Get(key string) (string, bool) {
	var env boltEnvelope
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &env)
	})
	if err != nil {
		slog.Warn("cache read failed", "bucket", string(b.bucket), "key", key, "error", err)
		return "", false
	}
	if !found || b.policy.expired(env.StoredAt, b.clock()) {
		return "", false
	}
	return env.Value, true
}

// Set stores value under key. Write errors are logged, not returned.
func (b *Bolt) Set(key, value string) {
	raw, err := json.Marshal(boltEnvelope{Value: value, StoredAt: b.clock()})
	if err != nil {
		return
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), raw)
	})
	if err != nil {
		slog.Warn("cache write failed", "bucket", string(b.bucket), "key", key, "error", err)
	}
}

// Len returns the number of keys in the bucket.
func (b *Bolt) Len() int {
	var n int
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(b.bucket).Stats().KeyN
		return nil
	})
	return n
}
