// Package store persists session state as key/value strings in an encrypted database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/internal/db"
	"github.com/meow-io/go-hush/migration"
	"go.uber.org/zap"
)

// File name of the database within a root directory.
const DefaultFile = "hush.db"

type KV struct {
	db  *db.Database
	log *zap.SugaredLogger
}

var migrations = []*migration.Migration{
	{
		Name: "Create session state table",
		Func: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE _session_state (
				key TEXT PRIMARY KEY NOT NULL,
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`)
			return err
		},
	},
}

// Open the database at path, creating it if needed.
func Open(c *config.Config, path string, key []byte) (*KV, error) {
	d, err := db.NewDatabase(c, path)
	if err != nil {
		return nil, err
	}
	if !d.Initialized() {
		if err := d.Initialize(key); err != nil {
			return nil, err
		}
	}
	if err := d.Open(key); err != nil {
		return nil, err
	}
	if err := d.Migrate("_store", migrations); err != nil {
		_ = d.Shutdown()
		return nil, err
	}
	return &KV{db: d, log: c.Logger("store")}, nil
}

func (kv *KV) Read(key string) (string, bool, error) {
	var value string
	found := true
	if err := kv.db.RunReadOnly("read state", func() error {
		err := kv.db.Tx.Get(&value, "SELECT value FROM _session_state WHERE key = ?", key)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	}); err != nil {
		return "", false, fmt.Errorf("store: error reading %s: %w", key, err)
	}
	return value, found, nil
}

func (kv *KV) Write(key, value string) error {
	kv.log.Debugf("writing %s (%d bytes)", key, len(value))
	if err := kv.db.Run("write state", func() error {
		_, err := kv.db.Tx.Exec(`INSERT INTO _session_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UnixMilli())
		return err
	}); err != nil {
		return fmt.Errorf("store: error writing %s: %w", key, err)
	}
	return nil
}

func (kv *KV) Keys() ([]string, error) {
	keys := []string{}
	if err := kv.db.RunReadOnly("list keys", func() error {
		return kv.db.Tx.Select(&keys, "SELECT key FROM _session_state ORDER BY key")
	}); err != nil {
		return nil, fmt.Errorf("store: error listing keys: %w", err)
	}
	return keys, nil
}

func (kv *KV) Close() error {
	return kv.db.Shutdown()
}
