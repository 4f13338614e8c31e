package devicestore

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
)

var bucketName = []byte("questionnaires")

// Bolt keeps session blobs in a single bbolt bucket so they survive restarts
// of the terminal client.
type Bolt struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	return value, ok, err
}

func (b *Bolt) Set(key, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if errors.Is(err, bbolt.ErrValueTooLarge) {
		return fmt.Errorf("%w: %w", localstore.ErrQuotaExceeded, err)
	}
	return err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
