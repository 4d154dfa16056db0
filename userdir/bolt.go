package userdir

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/m4xw311/dialagent/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("users")

// BoltStore persists users to a BoltDB file on disk. Keys are big-endian ids
// so iteration yields users in creation order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	// Another process holding the file lock fails fast instead of blocking.
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open user database %s", path)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create users bucket")
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Close() error { return b.db.Close() }

func (b *BoltStore) Add(ctx context.Context, in UserCreate) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	var u User
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		u = newUser(int64(seq), in)
		return put(bkt, u)
	})
	if err != nil {
		return User{}, errors.Wrapf(err, "add user")
	}
	return u, nil
}

func (b *BoltStore) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get(key(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &u)
	})
	if err != nil {
		return User{}, errors.Wrapf(err, "get user %d", id)
	}
	return u, nil
}

func (b *BoltStore) Search(ctx context.Context, q SearchQuery) ([]User, error) {
	users := []User{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(_, raw []byte) error {
			var u User
			if err := json.Unmarshal(raw, &u); err != nil {
				return err
			}
			if q.Matches(u) {
				users = append(users, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "search users")
	}
	return users, nil
}

func (b *BoltStore) Update(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	var u User
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		raw := bkt.Get(key(id))
		if raw == nil {
			return ErrNotFound
		}
		var current User
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		u = upd.Apply(current)
		return put(bkt, u)
	})
	if err != nil {
		return User{}, errors.Wrapf(err, "update user %d", id)
	}
	return u, nil
}

func (b *BoltStore) Delete(ctx context.Context, id int64) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt.Get(key(id)) == nil {
			return ErrNotFound
		}
		return bkt.Delete(key(id))
	})
	return errors.Wrapf(err, "delete user %d", id)
}

func key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func put(bkt *bolt.Bucket, u User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return bkt.Put(key(u.ID), raw)
}
