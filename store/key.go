package store

import (
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const saltName = "salt"

// NewKey derives the 32 byte database key for password. The salt lives next to the database in root and is
// created on first use.
func NewKey(password, root string) ([]byte, error) {
	salt, err := readSalt(filepath.Join(root, saltName))
	if err != nil {
		return nil, fmt.Errorf("store: error reading salt: %w", err)
	}
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32), nil
}

func readSalt(path string) ([]byte, error) {
	salt := make([]byte, 16)
	f, err := os.OpenFile(path, os.O_RDONLY, 0o400) // #nosec G304
	if errors.Is(err, os.ErrNotExist) {
		return writeSalt(path, salt)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.ReadFull(f, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func writeSalt(path string, salt []byte) ([]byte, error) {
	if _, err := crypto_rand.Read(salt); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_SYNC, 0o400) // #nosec G304
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(salt); err != nil {
		_ = f.Close()
		return nil, err
	}
	return salt, f.Close()
}
