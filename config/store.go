package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dekarrin/lectern/dao"
	"github.com/dekarrin/lectern/dao/filedb"
	"github.com/dekarrin/lectern/dao/inmem"
	"github.com/dekarrin/lectern/dao/sqldb"
	"github.com/dekarrin/lectern/internal/sorted"
)

// StoreType is the kind of store that a lectern server keeps its data in.
type StoreType string

func (st StoreType) String() string {
	return string(st)
}

const (
	StoreNone     StoreType = "none"
	StoreInMemory StoreType = "inmem"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
	StoreFile     StoreType = "file"
)

// ParseStoreType parses a string into a StoreType. The empty string is parsed
// as StoreNone. Types other than the built-in ones are accepted so that
// connectors registered with a ConnectorRegistry can be selected.
func ParseStoreType(s string) (StoreType, error) {
	sLower := strings.ToLower(strings.TrimSpace(s))

	switch sLower {
	case "", StoreNone.String():
		return StoreNone, nil
	default:
		if strings.ContainsAny(sLower, " \t\n") {
			return StoreNone, fmt.Errorf("store type cannot contain whitespace: %q", s)
		}
		return StoreType(sLower), nil
	}
}

// Store contains configuration settings for connecting to a store.
type Store struct {
	// Type is the type of store the config refers to. It also determines
	// which of its other fields are valid.
	Type StoreType

	// Dir is the path on disk to a directory to keep data in. This is only
	// applicable to the sqlite and file types.
	Dir string

	// File is the name of the data file within Dir. It defaults to
	// "lectern.db" for sqlite and "lectern.rezi" for file.
	File string

	// DSN is the connection string of a postgres store.
	DSN string
}

// Path returns the full path of the store's data file.
func (s Store) Path() string {
	return filepath.Join(s.Dir, s.File)
}

func (s Store) FillDefaults() Store {
	newS := s

	switch newS.Type {
	case StoreNone, "":
		newS = Store{Type: StoreInMemory}
	case StoreSQLite:
		if newS.Dir == "" {
			newS.Dir = "data"
		}
		if newS.File == "" {
			newS.File = "lectern.db"
		}
	case StoreFile:
		if newS.Dir == "" {
			newS.Dir = "data"
		}
		if newS.File == "" {
			newS.File = "lectern.rezi"
		}
	}

	return newS
}

// Validate returns an error if the Store does not have the correct fields
// set for its type. Types that are not built in are not checked.
func (s Store) Validate() error {
	switch s.Type {
	case StoreInMemory:
		// nothing else to check
		return nil
	case StoreSQLite, StoreFile:
		if s.Dir == "" {
			return fmt.Errorf("dir: must be set for %s store", s.Type)
		}
		if s.File == "" {
			return fmt.Errorf("file: must be set for %s store", s.Type)
		}
		return nil
	case StorePostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn: must be set for postgres store")
		}
		return nil
	case StoreNone, "":
		return fmt.Errorf("'none' store is not valid")
	default:
		return nil
	}
}

// ConnectorRegistry holds registered functions for creating the Connector of
// a Store.
//
// The zero value can be immediately used and will have the built-in
// connectors available. This can be disabled by setting DisableDefaults to
// true before attempting to use it.
type ConnectorRegistry struct {
	DisableDefaults bool
	reg             map[StoreType]func(Store) (dao.Connector, error)
}

func (cr *ConnectorRegistry) initDefaults() {
	if cr.reg != nil {
		return
	}

	cr.reg = map[StoreType]func(Store) (dao.Connector, error){}
	if cr.DisableDefaults {
		return
	}

	cr.reg[StoreInMemory] = func(Store) (dao.Connector, error) {
		return inmem.New(), nil
	}
	cr.reg[StoreSQLite] = func(s Store) (dao.Connector, error) {
		err := os.MkdirAll(s.Dir, 0770)
		if err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}

		conn, err := sqldb.Open(sqldb.DriverSQLite, s.Path())
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite: %w", err)
		}
		return conn, nil
	}
	cr.reg[StorePostgres] = func(s Store) (dao.Connector, error) {
		conn, err := sqldb.Open(sqldb.DriverPostgres, s.DSN)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres: %w", err)
		}
		return conn, nil
	}
	cr.reg[StoreFile] = func(s Store) (dao.Connector, error) {
		err := os.MkdirAll(s.Dir, 0770)
		if err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return filedb.New(s.Path()), nil
	}
}

// Register sets the function used to create Connectors for stores of type t,
// replacing any that was already registered for it.
func (cr *ConnectorRegistry) Register(t StoreType, connector func(Store) (dao.Connector, error)) error {
	if connector == nil {
		return fmt.Errorf("connector function cannot be nil")
	}
	if t == StoreNone || t == "" {
		return fmt.Errorf("cannot register a connector for the 'none' store type")
	}

	cr.initDefaults()
	cr.reg[t] = connector
	return nil
}

// List returns an alphabetized list of all store types that have a
// registered connector.
func (cr *ConnectorRegistry) List() []StoreType {
	cr.initDefaults()

	return sorted.Keys(cr.reg)
}

// Open creates the Connector for the configured store. The returned Connector
// has not yet been connected.
func (cr *ConnectorRegistry) Open(s Store) (dao.Connector, error) {
	cr.initDefaults()

	connector, ok := cr.reg[s.Type]
	if !ok {
		return nil, fmt.Errorf("%q is not a registered store type", s.Type)
	}
	return connector(s)
}
