// Package dao provides the repository abstraction that decouples lectern's
// entities from the store they are persisted in.
//
// A Repository maps one entity type to a named collection in a Connector.
// Entities are given to the Connector as JSON documents, so a Connector need
// not know the schema of anything it stores. Concrete connectors live in the
// sub-packages inmem, sqldb, and filedb.
package dao

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dekarrin/lectern"
)

// KeyStore is the binding key that the shared Connector is resolved under.
const KeyStore = "datasources.store"

// Connector is a store of JSON documents grouped into named collections and
// keyed by ID within each one.
//
// Connectors must be safe for concurrent use. Insert must return an error
// matching lectern.ErrDuplicateKey if the ID already exists in the collection;
// FindByID, Update, and Delete must return an error matching
// lectern.ErrNotFound if it does not.
type Connector interface {
	// Connect prepares the store for use. It must be called before any other
	// method.
	Connect(ctx context.Context) error

	// Insert adds doc under id in the collection.
	Insert(ctx context.Context, collection, id string, doc []byte) error

	// FindByID retrieves the document stored under id in the collection.
	FindByID(ctx context.Context, collection, id string) ([]byte, error)

	// FindAll retrieves every document in the collection, ordered by ID string. If
	// there are none, the returned slice is empty and the error is nil.
	FindAll(ctx context.Context, collection string) ([][]byte, error)

	// Update replaces the document stored under id in the collection.
	Update(ctx context.Context, collection, id string, doc []byte) error

	// Delete removes the document stored under id in the collection.
	Delete(ctx context.Context, collection, id string) error

	// Close releases all resources held by the Connector. It should always be
	// called once the Connector is no longer in use.
	Close() error
}

// Entity is a model that a Repository can store.
type Entity[ID comparable] interface {
	// ModelID returns the ID that uniquely identifies the Entity. The zero
	// value of ID means that it has not been set.
	ModelID() ID

	// Validate returns an error that matches lectern.ErrValidation if the
	// Entity is missing required data.
	Validate() error
}

// Repository is a typed data object repository that maps ID-typed identifiers
// to E-typed entities in one collection of a Connector. The Repository does
// not own the Connector; closing it is up to whatever created it.
type Repository[E Entity[ID], ID comparable] struct {
	collection string
	conn       Connector
}

// NewRepository creates a Repository that stores entities in the given
// collection of conn.
func NewRepository[E Entity[ID], ID comparable](collection string, conn Connector) *Repository[E, ID] {
	return &Repository[E, ID]{collection: collection, conn: conn}
}

// Collection returns the name of the collection that the Repository uses.
func (r *Repository[E, ID]) Collection() string {
	return r.collection
}

// Create validates e and stores it. Validation happens before the Connector is
// used at all. The entity as it appears in the store after creation is
// returned.
//
// If an entity with the same ID already exists, the returned error will match
// lectern.ErrDuplicateKey. If e is not valid, it will match
// lectern.ErrValidation.
func (r *Repository[E, ID]) Create(ctx context.Context, e E) (E, error) {
	var zero E

	if err := e.Validate(); err != nil {
		return zero, err
	}

	id := idString(e.ModelID())
	doc, err := json.Marshal(e)
	if err != nil {
		return zero, lectern.NewError(fmt.Sprintf("encode %s %s", r.collection, id), err)
	}

	if err := r.conn.Insert(ctx, r.collection, id, doc); err != nil {
		return zero, lectern.WrapConnectorError(err, fmt.Sprintf("insert %s %s", r.collection, id))
	}

	return r.Get(ctx, e.ModelID())
}

// Get retrieves the entity with the given ID. If there is none, the returned
// error will match lectern.ErrNotFound.
func (r *Repository[E, ID]) Get(ctx context.Context, id ID) (E, error) {
	var zero E

	doc, err := r.conn.FindByID(ctx, r.collection, idString(id))
	if err != nil {
		return zero, lectern.WrapConnectorError(err, fmt.Sprintf("get %s %s", r.collection, idString(id)))
	}

	return r.decode(doc)
}

// GetAll retrieves every entity in the Repository. If there are none, the
// returned slice is empty and the error is nil.
func (r *Repository[E, ID]) GetAll(ctx context.Context) ([]E, error) {
	docs, err := r.conn.FindAll(ctx, r.collection)
	if err != nil {
		return nil, lectern.WrapConnectorError(err, fmt.Sprintf("list %s", r.collection))
	}

	all := make([]E, 0, len(docs))
	for i := range docs {
		e, err := r.decode(docs[i])
		if err != nil {
			return nil, err
		}
		all = append(all, e)
	}
	return all, nil
}

// Update replaces the entity with the given ID with e. The ID itself cannot be
// changed; if the ID of e differs from id, the returned error will match
// lectern.ErrValidation. If there is no entity with the given ID, the
// returned error will match lectern.ErrNotFound.
//
// The entity as it appears in the store after updating is returned.
func (r *Repository[E, ID]) Update(ctx context.Context, id ID, e E) (E, error) {
	var zero E

	if e.ModelID() != id {
		return zero, lectern.NewError(fmt.Sprintf("cannot change ID of %s %s to %s", r.collection, idString(id), idString(e.ModelID())), lectern.ErrValidation)
	}
	if err := e.Validate(); err != nil {
		return zero, err
	}

	doc, err := json.Marshal(e)
	if err != nil {
		return zero, lectern.NewError(fmt.Sprintf("encode %s %s", r.collection, idString(id)), err)
	}

	if err := r.conn.Update(ctx, r.collection, idString(id), doc); err != nil {
		return zero, lectern.WrapConnectorError(err, fmt.Sprintf("update %s %s", r.collection, idString(id)))
	}

	return r.Get(ctx, id)
}

// Delete removes the entity with the given ID. The entity as it was
// immediately before deletion is returned. If there is no entity with the
// given ID, the returned error will match lectern.ErrNotFound.
func (r *Repository[E, ID]) Delete(ctx context.Context, id ID) (E, error) {
	var zero E

	e, err := r.Get(ctx, id)
	if err != nil {
		return zero, err
	}

	if err := r.conn.Delete(ctx, r.collection, idString(id)); err != nil {
		return zero, lectern.WrapConnectorError(err, fmt.Sprintf("delete %s %s", r.collection, idString(id)))
	}

	return e, nil
}

func (r *Repository[E, ID]) decode(doc []byte) (E, error) {
	var e E
	if err := json.Unmarshal(doc, &e); err != nil {
		return e, lectern.NewError(fmt.Sprintf("decode stored %s", r.collection), err, lectern.ErrConnector)
	}
	return e, nil
}

func idString[ID comparable](id ID) string {
	return fmt.Sprint(id)
}
