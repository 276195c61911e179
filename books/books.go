// Package books wires the Book entity into a binding context: its repository,
// the provider of the book-creating function, and the operations that routes
// invoke.
package books

import (
	"context"
	"fmt"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/dao"
)

// Collection is the name of the store collection that books are kept in.
const Collection = "books"

// Binding keys registered by Register.
const (
	KeyRepository      = "repositories.BookRepository"
	KeyCreatorProvider = "providers.BookCreatorProvider"

	KeyOpCreate = "operations.books.create"
	KeyOpGet    = "operations.books.get"
	KeyOpList   = "operations.books.list"
	KeyOpUpdate = "operations.books.update"
	KeyOpDelete = "operations.books.delete"
)

// TagOperation is the tag given to every operation binding.
const TagOperation = "operation"

// Repository is the repository of books, keyed by ISBN.
type Repository = dao.Repository[lectern.Book, int64]

// NewRepository creates a book Repository over conn.
func NewRepository(conn dao.Connector) *Repository {
	return dao.NewRepository[lectern.Book, int64](Collection, conn)
}

// CreateFunc stores a new book and returns it as stored.
type CreateFunc func(ctx context.Context, b lectern.Book) (lectern.Book, error)

// CreatorProvider provides the CreateFunc used to create books. Its
// dependencies are resolved once, when the provider is constructed.
type CreatorProvider struct {
	repo *Repository
	log  lectern.Logger
}

// NewCreatorProvider creates a CreatorProvider that creates books in repo.
func NewCreatorProvider(repo *Repository, log lectern.Logger) *CreatorProvider {
	return &CreatorProvider{repo: repo, log: log}
}

// Value returns the CreateFunc. It never fails.
func (p *CreatorProvider) Value(ctx context.Context) (any, error) {
	return p.Create(), nil
}

// Create returns the typed CreateFunc.
func (p *CreatorProvider) Create() CreateFunc {
	return func(ctx context.Context, b lectern.Book) (lectern.Book, error) {
		p.log.Debugf("creating book %d (%q)", b.ISBN, b.Title)
		return p.repo.Create(ctx, b)
	}
}

// Register binds the book repository, the book creator provider, and every
// book operation into c. The repository depends on the Connector bound under
// dao.KeyStore and the provider on the logger bound under bind.KeyLogger; both
// must be resolvable from c by the time an operation is first resolved.
func Register(c *bind.Context) {
	c.Bind(KeyRepository, bind.ToClass(NewRepository, dao.KeyStore)).
		InScope(bind.Singleton)

	c.Bind(KeyCreatorProvider, bind.ToProvider(NewCreatorProvider, KeyRepository, bind.KeyLogger.String())).
		InScope(bind.Singleton)

	c.Bind(KeyOpCreate, bind.ToClass(createOperation, KeyCreatorProvider)).
		InScope(bind.Singleton).
		WithTags(TagOperation)
	c.Bind(KeyOpGet, bind.ToClass(getOperation, KeyRepository)).
		InScope(bind.Singleton).
		WithTags(TagOperation)
	c.Bind(KeyOpList, bind.ToClass(listOperation, KeyRepository)).
		InScope(bind.Singleton).
		WithTags(TagOperation)
	c.Bind(KeyOpUpdate, bind.ToClass(updateOperation, KeyRepository)).
		InScope(bind.Singleton).
		WithTags(TagOperation)
	c.Bind(KeyOpDelete, bind.ToClass(deleteOperation, KeyRepository)).
		InScope(bind.Singleton).
		WithTags(TagOperation)
}

// createOperation takes a single lectern.Book.
func createOperation(create CreateFunc) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		b, err := argBook(args, 0, 1)
		if err != nil {
			return nil, err
		}
		return create(ctx, b)
	}
}

// getOperation takes a single int64 ISBN.
func getOperation(repo *Repository) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		isbn, err := argISBN(args, 0, 1)
		if err != nil {
			return nil, err
		}
		return repo.Get(ctx, isbn)
	}
}

// listOperation takes no arguments.
func listOperation(repo *Repository) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) != 0 {
			return nil, lectern.NewError(fmt.Sprintf("want no arguments, got %d", len(args)), lectern.ErrBadArgument)
		}
		return repo.GetAll(ctx)
	}
}

// updateOperation takes an int64 ISBN and the lectern.Book to replace it with.
// If the book has no ISBN, it is taken from the first argument.
func updateOperation(repo *Repository) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		isbn, err := argISBN(args, 0, 2)
		if err != nil {
			return nil, err
		}
		b, err := argBook(args, 1, 2)
		if err != nil {
			return nil, err
		}
		if b.ISBN == 0 {
			b.ISBN = isbn
		}
		return repo.Update(ctx, isbn, b)
	}
}

// deleteOperation takes a single int64 ISBN.
func deleteOperation(repo *Repository) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		isbn, err := argISBN(args, 0, 1)
		if err != nil {
			return nil, err
		}
		return repo.Delete(ctx, isbn)
	}
}

func argBook(args []any, idx, count int) (lectern.Book, error) {
	if len(args) != count {
		return lectern.Book{}, lectern.NewError(fmt.Sprintf("want %d argument(s), got %d", count, len(args)), lectern.ErrBadArgument)
	}
	switch b := args[idx].(type) {
	case lectern.Book:
		return b, nil
	case *lectern.Book:
		if b != nil {
			return *b, nil
		}
	}
	return lectern.Book{}, lectern.NewError(fmt.Sprintf("argument %d: want a book, got %T", idx, args[idx]), lectern.ErrBadArgument)
}

func argISBN(args []any, idx, count int) (int64, error) {
	if len(args) != count {
		return 0, lectern.NewError(fmt.Sprintf("want %d argument(s), got %d", count, len(args)), lectern.ErrBadArgument)
	}
	isbn, ok := args[idx].(int64)
	if !ok {
		return 0, lectern.NewError(fmt.Sprintf("argument %d: want an ISBN, got %T", idx, args[idx]), lectern.ErrBadArgument)
	}
	return isbn, nil
}
