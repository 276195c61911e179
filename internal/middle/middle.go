// Package middle contains HTTP middleware used by the lectern server in front
// of the request sequence.
package middle

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/token"
)

type mwFunc http.HandlerFunc

func (sf mwFunc) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	sf(w, req)
}

type ctxKey int64

const (
	ctxKeySubject ctxKey = iota
)

// Middleware wraps an http.Handler with extra behavior.
type Middleware = func(next http.Handler) http.Handler

// GetSubject returns the subject of the bearer token that RequireToken
// accepted for req. ok is false if no token was checked.
func GetSubject(req *http.Request) (subject string, ok bool) {
	subject, ok = req.Context().Value(ctxKeySubject).(string)
	return subject, ok
}

// RequireToken returns middleware that rejects any request without a valid
// bearer token signed with secret. Rejected requests get an HTTP-401 and never
// reach next.
func RequireToken(secret []byte, log lectern.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return mwFunc(func(w http.ResponseWriter, req *http.Request) {
			subject, err := checkToken(req, secret)
			if err != nil {
				r := lectern.Unauthorized("", err.Error())
				r.WriteResponse(w)
				log.LogResult(req, r)
				return
			}

			ctx := context.WithValue(req.Context(), ctxKeySubject, subject)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func checkToken(req *http.Request, secret []byte) (string, error) {
	tok, err := token.Get(req)
	if err != nil {
		return "", err
	}

	subject, err := token.Validate(tok, secret)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return subject, nil
}

// DontPanic returns a Middleware that performs a panic check as it exits. If
// the function is panicking, it will write out an HTTP-500 with a generic
// message to the client and add the panic to the log.
func DontPanic(log lectern.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return mwFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if panicErr := recover(); panicErr != nil {
					log.Errorf("panic: %v\nSTACK TRACE: %s", panicErr, string(debug.Stack()))

					r := lectern.Err(fmt.Errorf("panic: %v", panicErr))
					r.WriteResponse(w)
					log.LogResult(req, r)
				}
			}()
			next.ServeHTTP(w, req)
		})
	}
}
