package session

import (
	"fmt"
)

// Store defines the interface for all stores that persist session
// records between runs, keyed by username.
type Store interface {
	// Load returns the stored record or nil if none exists.
	Load(username string) (*Record, error)
	Save(username string, r *Record) error
	// Clear deletes any stored record; clearing a missing record is
	// not an error.
	Clear(username string) error
}

// StoreConfig defines the necessary parameters to make a new store.
// Values will be taken from a config yml file or environment variables
// or both.
type StoreConfig struct {
	Type        StoreType `yaml:"type"`
	Dir         string    `yaml:"dir"`
	Uri         string    `yaml:"uri"`
	User        string    `yaml:"user" env:"SIQ_SESSION_USER"`         // we want to be able to pass credentials via env vars
	Password    string    `yaml:"password" env:"SIQ_SESSION_PASSWORD"` // we want to be able to pass credentials via env vars
	MaxAgeHours int       `yaml:"max_age_hours"`
}

// StoreType encapsulates the type of a store
// See below constants for possible types
type StoreType string

const (
	FILE_STORE_TYPE StoreType = "file"
	API_STORE_TYPE  StoreType = "api"
)

// NewStore returns a new store depending on the store type
func NewStore(sc *StoreConfig) (Store, error) {
	switch sc.Type {
	case FILE_STORE_TYPE, "":
		return NewFileStore(sc)
	case API_STORE_TYPE:
		return NewHTTPStore(sc)
	default:
		return nil, fmt.Errorf("session store of type '%s' not implemented", sc.Type)
	}
}
