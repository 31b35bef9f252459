package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// maxSeenEntries bounds each watcher's seen-set; oldest entries are pruned
// past this to keep the sidecar small (the reference kept the last 1000).
const maxSeenEntries = 1000

// SeenStore is the per-watcher dedup sidecar: a small BoltDB file mapping
// source-native ids to the time they were first observed. It lives outside
// the synced vault tree and may be deleted at the cost of one duplicate
// emission per pending id.
type SeenStore struct {
	db *bolt.DB
}

// OpenSeenStore opens (or creates) the sidecar database at dir/<watcher>.db.
func OpenSeenStore(dir, watcher string) (*SeenStore, error) {
	path := filepath.Join(dir, watcher+".db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open seen store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSeen)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init seen store %s: %w", path, err)
	}
	return &SeenStore{db: db}, nil
}

var bucketSeen = []byte("seen")

// Seen reports whether the source id was already processed.
func (s *SeenStore) Seen(id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketSeen).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// MarkSeen records the source id, pruning the oldest entries beyond the
// retention bound.
func (s *SeenStore) MarkSeen(id string) error {
	now := time.Now().UnixNano()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeen)
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(now))
		if err := b.Put([]byte(id), ts[:]); err != nil {
			return err
		}
		return pruneOldest(b, maxSeenEntries)
	})
}

// Count returns the number of remembered ids.
func (s *SeenStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSeen).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *SeenStore) Close() error {
	return s.db.Close()
}

func pruneOldest(b *bolt.Bucket, keep int) error {
	// Stats().KeyN reflects the last commit, not writes made inside this
	// transaction; the cursor walk sees both, so the bound comes from it.
	type entry struct {
		id []byte
		ts uint64
	}
	var all []entry
	cur := b.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		all = append(all, entry{
			id: append([]byte(nil), k...),
			ts: binary.BigEndian.Uint64(v),
		})
	}
	excess := len(all) - keep
	if excess <= 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts < all[j].ts })
	for _, e := range all[:excess] {
		if err := b.Delete(e.id); err != nil {
			return err
		}
	}
	return nil
}
