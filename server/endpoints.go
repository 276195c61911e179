package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/books"
	"github.com/dekarrin/lectern/sequence"
)

// KeyOpPing is the binding key of the operation served at /ping.
const KeyOpPing = "operations.ping"

// PingResponse is the body returned by /ping.
type PingResponse struct {
	Message string `json:"message"`
	AppName string `json:"app_name"`
}

func pingOperation(message, appName string) lectern.Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		return PingResponse{Message: message, AppName: appName}, nil
	}
}

func parseISBN(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func createBookTarget(req *http.Request) (sequence.Target, error) {
	var b lectern.Book
	if err := lectern.ParseJSONRequest(req, &b); err != nil {
		return sequence.Target{}, err
	}

	return sequence.Target{
		Operation: books.KeyOpCreate,
		Args:      []any{b},
		Status:    http.StatusCreated,
	}, nil
}

func getBookTarget(req *http.Request) (sequence.Target, error) {
	isbn, err := lectern.GetURLParam(req, "isbn", parseISBN)
	if err != nil {
		return sequence.Target{}, err
	}

	return sequence.Target{Operation: books.KeyOpGet, Args: []any{isbn}}, nil
}

func updateBookTarget(req *http.Request) (sequence.Target, error) {
	isbn, err := lectern.GetURLParam(req, "isbn", parseISBN)
	if err != nil {
		return sequence.Target{}, err
	}

	var b lectern.Book
	if err := lectern.ParseJSONRequest(req, &b); err != nil {
		return sequence.Target{}, err
	}
	if b.ISBN != 0 && b.ISBN != isbn {
		msg := fmt.Sprintf("isbn %d in body does not match isbn %d in path", b.ISBN, isbn)
		return sequence.Target{}, lectern.NewError(msg, lectern.ErrBadArgument)
	}

	return sequence.Target{Operation: books.KeyOpUpdate, Args: []any{isbn, b}}, nil
}

func deleteBookTarget(req *http.Request) (sequence.Target, error) {
	isbn, err := lectern.GetURLParam(req, "isbn", parseISBN)
	if err != nil {
		return sequence.Target{}, err
	}

	return sequence.Target{Operation: books.KeyOpDelete, Args: []any{isbn}}, nil
}
