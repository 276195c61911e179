// Package inmem provides a dao.Connector that keeps every document in memory.
// Its contents do not survive the process.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/internal/sorted"
)

// Connector is an in-memory dao.Connector. The zero value is not ready for use;
// create one with New.
type Connector struct {
	mtx         sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// New creates a new, empty in-memory Connector.
func New() *Connector {
	return &Connector{collections: map[string]map[string][]byte{}}
}

// Connect does nothing beyond checking that the Connector is open.
func (c *Connector) Connect(ctx context.Context) error {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.checkOpen()
}

func (c *Connector) Insert(ctx context.Context, collection, id string, doc []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	coll, ok := c.collections[collection]
	if !ok {
		coll = map[string][]byte{}
		c.collections[collection] = coll
	}

	if _, ok := coll[id]; ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrDuplicateKey)
	}

	coll[id] = copyBytes(doc)
	return nil
}

func (c *Connector) FindByID(ctx context.Context, collection, id string) ([]byte, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	doc, ok := c.collections[collection][id]
	if !ok {
		return nil, lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}
	return copyBytes(doc), nil
}

func (c *Connector) FindAll(ctx context.Context, collection string) ([][]byte, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	coll := c.collections[collection]
	all := make([][]byte, 0, len(coll))
	for _, id := range sorted.Keys(coll) {
		all = append(all, copyBytes(coll[id]))
	}
	return all, nil
}

func (c *Connector) Update(ctx context.Context, collection, id string, doc []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	coll := c.collections[collection]
	if _, ok := coll[id]; !ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}

	coll[id] = copyBytes(doc)
	return nil
}

func (c *Connector) Delete(ctx context.Context, collection, id string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	coll := c.collections[collection]
	if _, ok := coll[id]; !ok {
		return lectern.NewError(fmt.Sprintf("%s %s", collection, id), lectern.ErrNotFound)
	}

	delete(coll, id)
	return nil
}

// Close discards all data held by the Connector. The Connector cannot be used
// afterwards.
func (c *Connector) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.closed = true
	c.collections = nil
	return nil
}

func (c *Connector) checkOpen() error {
	if c.closed {
		return lectern.NewError("operation called on closed in-memory connector", lectern.ErrConnector)
	}
	return nil
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
