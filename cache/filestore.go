package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per entry at <root>/index/<type>/<key[0]>/<key>.json.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (f *FileStore) path(typ, key string) string {
	return filepath.Join(f.root, "index", typ, key[:1], key+".json")
}

func (f *FileStore) Load(typ, key string) ([]byte, bool) {
	if !validKey(typ, key) {
		return nil, false
	}
	data, err := os.ReadFile(f.path(typ, key))
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

// Save writes through a temporary file so a reader never sees a partial document.
func (f *FileStore) Save(typ, key string, data []byte) error {
	if !validKey(typ, key) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidKey, typ, key)
	}
	path := f.path(typ, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
