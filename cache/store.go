package cache

import (
	"errors"
	"strings"
)

var ErrInvalidKey = errors.New("cache: invalid key")

// Store is a durable keyed store of JSON documents. Entries never expire.
type Store interface {
	// Load returns the stored bytes, any failure is reported as a miss.
	Load(typ, key string) ([]byte, bool)
	Save(typ, key string, data []byte) error
}

func validKey(typ, key string) bool {
	if typ == "" || key == "" {
		return false
	}
	if strings.ContainsAny(typ+key, `/\`) || strings.Contains(typ+key, "..") {
		return false
	}
	return true
}
