package workers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// loadState decodes the JSON stored under key into out. A missing key leaves
// out untouched and reports false.
func loadState(db *leveldb.DB, key string, out interface{}) (bool, error) {
	raw, err := db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("could not decode %s: %w", key, err)
	}
	return true, nil
}

func saveState(db *leveldb.DB, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Put([]byte(key), raw, nil)
}
