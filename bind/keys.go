package bind

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/dekarrin/lectern"
)

// Key is a binding key that carries the type of the value bound to it.
type Key[T any] string

func (k Key[T]) String() string {
	return string(k)
}

// Well-known keys.
const (
	KeyLogger    Key[lectern.Logger] = "logger"
	KeyAppName   Key[string]         = "app.name"
	KeyMessage   Key[string]         = "message"
	KeyRequest   Key[*http.Request]  = "rest.http.request"
	KeyRequestID Key[string]         = "rest.request.id"
)

// Resolve resolves key from c and checks that the value has type T. If it does
// not, the returned error will return true for errors.Is(err,
// lectern.ErrWrongType).
func Resolve[T any](ctx context.Context, c *Context, key Key[T]) (T, error) {
	var zero T

	v, err := c.Get(ctx, string(key))
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		want := reflect.TypeOf((*T)(nil)).Elem()
		return zero, lectern.NewError(fmt.Sprintf("key %q holds %T, not %s", string(key), v, want), lectern.ErrWrongType)
	}
	return typed, nil
}

// BindValue binds the constant v under key in c.
func BindValue[T any](c *Context, key Key[T], v T) *Binding {
	return c.Bind(string(key), ToValue(v))
}
