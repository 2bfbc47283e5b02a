package cache

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore keeps entries in a single LevelDB under "<type>/<key>".
type LevelDBStore struct {
	db *leveldb.DB
}

func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (l *LevelDBStore) Load(typ, key string) ([]byte, bool) {
	if !validKey(typ, key) {
		return nil, false
	}
	data, err := l.db.Get([]byte(typ+"/"+key), nil)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (l *LevelDBStore) Save(typ, key string, data []byte) error {
	if !validKey(typ, key) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidKey, typ, key)
	}
	return l.db.Put([]byte(typ+"/"+key), data, nil)
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}
