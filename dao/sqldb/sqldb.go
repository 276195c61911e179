// Package sqldb provides a dao.Connector backed by a SQL database. SQLite (via
// modernc.org/sqlite) and PostgreSQL (via github.com/lib/pq) are supported;
// queries are written once and rebound to the placeholder style of whichever
// driver is in use.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dekarrin/lectern"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Connector is a dao.Connector that stores every collection in a single table
// of a SQL database. Create one with Open or New.
type Connector struct {
	driver string
	dsn    string

	mtx sync.RWMutex
	db  *sqlx.DB
}

// Open creates a Connector that will connect to the database at dsn using the
// named driver when Connect is called. driver must be one of DriverSQLite or
// DriverPostgres.
func Open(driver, dsn string) (*Connector, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}
	return &Connector{driver: driver, dsn: dsn}, nil
}

// New creates a Connector that uses an already-open database. Connect must
// still be called before use.
func New(db *sqlx.DB) *Connector {
	return &Connector{driver: db.DriverName(), db: db}
}

// Connect opens the database if it is not already open, checks that it can be
// reached, and creates the documents table if it does not yet exist.
func (c *Connector) Connect(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.db == nil {
		db, err := sqlx.ConnectContext(ctx, c.driver, c.dsn)
		if err != nil {
			return WrapDBError(err)
		}
		if c.driver == DriverSQLite {
			// modernc sqlite does not share an in-memory database between
			// connections
			db.SetMaxOpenConns(1)
		}
		c.db = db
	} else if err := c.db.PingContext(ctx); err != nil {
		return WrapDBError(err)
	}

	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);`)
	if err != nil {
		return WrapDBError(err)
	}

	return nil
}

func (c *Connector) Insert(ctx context.Context, collection, id string, doc []byte) error {
	db, err := c.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?);`), collection, id, string(doc))
	if err != nil {
		return WrapDBError(err)
	}
	return nil
}

func (c *Connector) FindByID(ctx context.Context, collection, id string) ([]byte, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}

	var data string
	err = db.GetContext(ctx, &data, db.Rebind(`SELECT data FROM documents WHERE collection=? AND id=?;`), collection, id)
	if err != nil {
		return nil, WrapDBError(err)
	}
	return []byte(data), nil
}

func (c *Connector) FindAll(ctx context.Context, collection string) ([][]byte, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}

	var data []string
	err = db.SelectContext(ctx, &data, db.Rebind(`SELECT data FROM documents WHERE collection=? ORDER BY id;`), collection)
	if err != nil {
		return nil, WrapDBError(err)
	}

	all := make([][]byte, len(data))
	for i := range data {
		all[i] = []byte(data[i])
	}
	return all, nil
}

func (c *Connector) Update(ctx context.Context, collection, id string, doc []byte) error {
	db, err := c.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE documents SET data=? WHERE collection=? AND id=?;`), string(doc), collection, id)
	if err != nil {
		return WrapDBError(err)
	}
	return requireAffected(res, collection, id)
}

func (c *Connector) Delete(ctx context.Context, collection, id string) error {
	db, err := c.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM documents WHERE collection=? AND id=?;`), collection, id)
	if err != nil {
		return WrapDBError(err)
	}
	return requireAffected(res, collection, id)
}

// Close closes the underlying database. Calling Close on a Connector that was
// never connected has no effect.
func (c *Connector) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Connector) conn() (*sqlx.DB, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if c.db == nil {
		return nil, lectern.NewError("SQL connector is not connected", lectern.ErrConnector)
	}
	return c.db, nil
}

func requireAffected(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return WrapDBError(err)
	}
	if n == 0 {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}
	return nil
}

// WrapDBError wraps an error from a SQL engine into an error useable by the
// rest of lectern. It should be called on any error returned from the database
// before it is passed back to a caller.
//
// Uniqueness violations match lectern.ErrDuplicateKey, missing rows match
// lectern.ErrNotFound, and everything else matches lectern.ErrConnector.
func WrapDBError(err error) error {
	if err == nil {
		return nil
	}

	sqliteErr := &sqlite.Error{}
	pqErr := &pq.Error{}

	if errors.As(err, &sqliteErr) {
		primaryCode := sqliteErr.Code() & 0xff
		if primaryCode == 19 {
			return lectern.NewError(err.Error(), lectern.ErrDuplicateKey)
		}
		if primaryCode == 1 {
			// this is a generic error and thus the string is not descriptive,
			// so preserve the original error instead
			return lectern.NewError("", err, lectern.ErrConnector)
		}
		return lectern.NewError(sqlite.ErrorCodeString[sqliteErr.Code()], err, lectern.ErrConnector)
	} else if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return lectern.NewError(pqErr.Message, lectern.ErrDuplicateKey)
		}
		return lectern.NewError(pqErr.Code.Name(), err, lectern.ErrConnector)
	} else if errors.Is(err, sql.ErrNoRows) {
		return lectern.NewError("", err, lectern.ErrNotFound)
	}
	return lectern.NewError("", err, lectern.ErrConnector)
}
