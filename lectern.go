// Package lectern holds the types shared by every layer of the lectern book
// service: the Book entity, the error taxonomy, the Logger interface, and the
// Result type that responses are written from.
//
// A request to lectern passes through a sequence (package sequence), which
// resolves the operation being called from a binding context (package bind),
// invokes it through a chain of interceptors (package intercept), and writes
// the outcome. Operations on books are backed by a repository (package dao)
// over a pluggable connector.
package lectern

import "context"

// Operation is a target callable that a sequence can invoke. args are the
// arguments decoded from the request by routing; the meaning of each is
// defined by the operation.
type Operation func(ctx context.Context, args ...any) (any, error)
