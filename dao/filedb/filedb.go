// Package filedb provides a dao.Connector that keeps every document in memory
// and persists the whole store to a single REZI-encoded file after each
// change.
package filedb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/internal/sorted"
	"github.com/dekarrin/rezi/v2"
)

// Connector is a dao.Connector persisted to a single file. Create one with
// New.
//
// If DataFile is the empty string, the Connector works entirely in memory and
// persisting it has no effect.
type Connector struct {
	// DataFile is the file on disk that the store is kept in.
	DataFile string

	mtx       sync.RWMutex
	connected bool
	closed    bool

	// collection name -> id -> JSON document
	collections map[string]map[string]string
}

// New creates a Connector that will persist itself to file. No I/O is done
// until Connect is called.
func New(file string) *Connector {
	return &Connector{DataFile: file, collections: map[string]map[string]string{}}
}

// Import loads the given data bytes into a new in-memory Connector. The data
// bytes must have been created by a prior call to Export.
func Import(data []byte) (*Connector, error) {
	c := New("")
	if _, err := rezi.Dec(data, c); err != nil {
		return nil, err
	}
	c.connected = true
	return c, nil
}

// Connect loads the contents of DataFile if it exists. If it does not, it is
// created, so that a lack of permissions to write it is discovered
// immediately.
func (c *Connector) Connect(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return errClosed()
	}
	if c.connected || c.DataFile == "" {
		c.connected = true
		return nil
	}

	dbData, err := os.ReadFile(c.DataFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return lectern.NewError("read data file", err, lectern.ErrConnector)
	}

	if err == nil {
		loaded := New(c.DataFile)
		if _, err := rezi.Dec(dbData, loaded); err != nil {
			return lectern.NewError("load data file", err, lectern.ErrConnector)
		}
		c.collections = loaded.collections
	} else if err := c.persistUnsafe(); err != nil {
		return err
	}

	c.connected = true
	return nil
}

// MarshalBinary converts the store to a binary bytes representation of itself.
//
// This function is not concurrent safe and requires a read lock. Users of
// Connector should call Export instead.
func (c *Connector) MarshalBinary() ([]byte, error) {
	if c == nil {
		return []byte{}, nil
	}

	var enc []byte
	enc = append(enc, rezi.MustEnc(c.collections)...)
	return enc, nil
}

// UnmarshalBinary sets the contents of the store from a binary representation
// created with MarshalBinary.
//
// This function is not concurrent safe and requires a write lock. Users of
// Connector should call Import instead.
func (c *Connector) UnmarshalBinary(data []byte) error {
	if c == nil {
		return fmt.Errorf("cannot unmarshal to nil Connector")
	}

	var colls map[string]map[string]string
	if _, err := rezi.Dec(data, &colls); err != nil {
		return rezi.Wrapf(0, "collections: %s", err)
	}
	if colls == nil {
		colls = map[string]map[string]string{}
	}
	c.collections = colls
	return nil
}

// Export exports all data to bytes that can be later decoded with Import.
func (c *Connector) Export() ([]byte, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if c.closed {
		return nil, errClosed()
	}
	return rezi.Enc(c)
}

// Persist saves the store to DataFile. It is called automatically after every
// change.
func (c *Connector) Persist() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return errClosed()
	}
	return c.persistUnsafe()
}

// persistUnsafe does the actual work of Persist. It assumes the caller has
// acquired a write lock.
func (c *Connector) persistUnsafe() error {
	if c.DataFile == "" {
		return nil
	}

	data, err := rezi.Enc(c)
	if err != nil {
		return lectern.NewError("encode data", err, lectern.ErrConnector)
	}

	if err := writeFile(c.DataFile, data); err != nil {
		return lectern.NewError("persist data", err, lectern.ErrConnector)
	}
	return nil
}

func (c *Connector) Insert(ctx context.Context, collection, id string, doc []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkUsable(); err != nil {
		return err
	}

	coll, ok := c.collections[collection]
	if !ok {
		coll = map[string]string{}
		c.collections[collection] = coll
	}
	if _, ok := coll[id]; ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrDuplicateKey)
	}

	coll[id] = string(doc)
	if err := c.persistUnsafe(); err != nil {
		delete(coll, id)
		return err
	}
	return nil
}

func (c *Connector) FindByID(ctx context.Context, collection, id string) ([]byte, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}

	doc, ok := c.collections[collection][id]
	if !ok {
		return nil, lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}
	return []byte(doc), nil
}

func (c *Connector) FindAll(ctx context.Context, collection string) ([][]byte, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}

	coll := c.collections[collection]
	all := make([][]byte, 0, len(coll))
	for _, id := range sorted.Keys(coll) {
		all = append(all, []byte(coll[id]))
	}
	return all, nil
}

func (c *Connector) Update(ctx context.Context, collection, id string, doc []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkUsable(); err != nil {
		return err
	}

	coll := c.collections[collection]
	old, ok := coll[id]
	if !ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}

	coll[id] = string(doc)
	if err := c.persistUnsafe(); err != nil {
		coll[id] = old
		return err
	}
	return nil
}

func (c *Connector) Delete(ctx context.Context, collection, id string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkUsable(); err != nil {
		return err
	}

	coll := c.collections[collection]
	old, ok := coll[id]
	if !ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}

	delete(coll, id)
	if err := c.persistUnsafe(); err != nil {
		coll[id] = old
		return err
	}
	return nil
}

// Close persists the store one last time and releases it. After Close
// returns, the Connector cannot be used again, regardless of whether the
// returned error is nil. Closing an already-closed Connector has no effect.
func (c *Connector) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return nil
	}

	var err error
	if c.connected {
		err = c.persistUnsafe()
	}

	// close even if err is not nil; the Connector must not be usable after
	// return.
	c.closed = true
	return err
}

func (c *Connector) checkUsable() error {
	if c.closed {
		return errClosed()
	}
	if !c.connected {
		return lectern.NewError("file connector is not connected", lectern.ErrConnector)
	}
	return nil
}

func errClosed() error {
	return lectern.NewError("operation called on closed file connector", lectern.ErrConnector)
}
