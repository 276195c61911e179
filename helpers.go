package lectern

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

var (
	paramTypePats = map[string]string{
		"uuid":     `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
		"num":      `\d+`,
		"alpha":    `[A-Za-z]+`,
		"alphanum": `[A-Za-z0-9]+`,
	}
)

// PathParam translates strings of the form "name:type" to a URI path parameter
// string of the form "{name:regex}" compatible with chi. Only request URIs
// whose path parameters match their respective regexes will match that route.
//
// Currently, PathParam supports the following parameter type names:
//
//   - "uuid" - UUID strings.
//   - "num" - One or more digits 0-9.
//   - "alpha" - One or more Latin letters A-Z or a-z.
//   - "alphanum" - One or more Latin letters A-Z, a-z, or digits 0-9.
//
// Any other type is used as a regex directly. If only name is given in the
// string (with no colon), then the string "{" + name + "}" is returned.
func PathParam(nameType string) string {
	var name string
	var pat string

	parts := strings.SplitN(nameType, ":", 2)
	name = parts[0]
	if len(parts) == 2 {
		pat = parts[1]

		if translatedPat, ok := paramTypePats[parts[1]]; ok {
			pat = translatedPat
		}
	}

	if pat == "" {
		return "{" + name + "}"
	}
	return "{" + name + ":" + pat + "}"
}

// ParseJSONRequest decodes the JSON body of req into v, which must be a
// pointer. The returned error will return true for errors.Is(err,
// ErrBodyUnmarshal) if the body could not be decoded. The body of req remains
// readable afterwards.
func ParseJSONRequest(req *http.Request, v interface{}) error {
	contentType := req.Header.Get("Content-Type")
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || strings.ToLower(mediaType) != "application/json" {
			return NewError("request content-type is not application/json", ErrBodyUnmarshal)
		}
	}

	if req.Body == nil {
		return NewError("request has no body", ErrBodyUnmarshal)
	}

	bodyData, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("could not read request body: %w", err)
	}
	defer func() {
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewBuffer(bodyData))
	}()

	err = json.Unmarshal(bodyData, v)
	if err != nil {
		return NewError("malformed JSON in request", err, ErrBodyUnmarshal)
	}

	return nil
}

// GetURLParam gets the named chi URL parameter from r and parses it with
// parse. If it is missing or cannot be parsed, the returned error will return
// true for errors.Is(err, ErrBadArgument).
func GetURLParam[E any](r *http.Request, key string, parse func(string) (E, error)) (val E, err error) {
	valStr := chi.URLParam(r, key)
	if valStr == "" {
		// either it does not exist or it is nil; treat both as the same and
		// return an error
		return val, NewError(fmt.Sprintf("parameter %q does not exist", key), ErrBadArgument)
	}

	val, err = parse(valStr)
	if err != nil {
		return val, NewError(fmt.Sprintf("parameter %q", key), err, ErrBadArgument)
	}
	return val, nil
}
