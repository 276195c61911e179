package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dekarrin/lectern/config"
	"github.com/dekarrin/lectern/sequence"
	"github.com/dekarrin/lectern/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("an-auth-secret-of-32-bytes-long!")

func getInitializedServer(t *testing.T, cfg config.Config) *Server {
	srv, err := (&Environment{}).NewServer(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string, hdrs ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdrs); i += 2 {
		req.Header.Set(hdrs[i], hdrs[i+1])
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func Test_Server_books(t *testing.T) {
	type request struct {
		method       string
		path         string
		body         string
		expectStatus int
		expectBody   string
	}

	testCases := []struct {
		name     string
		requests []request
	}{
		{
			name: "create then get",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 9780441013593, "title": "Dune"}`, http.StatusCreated, `{"isbn": 9780441013593, "title": "Dune", "phone_no": 0}`},
				{http.MethodGet, "/books/9780441013593", "", http.StatusOK, `{"isbn": 9780441013593, "title": "Dune", "phone_no": 0}`},
			},
		},
		{
			name: "extra fields are kept",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 1, "title": "Emma", "phone_no": 5551234, "author": "Austen"}`, http.StatusCreated, `{"isbn": 1, "title": "Emma", "phone_no": 5551234, "author": "Austen"}`},
			},
		},
		{
			name: "duplicate create",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 1, "title": "Emma"}`, http.StatusCreated, ""},
				{http.MethodPost, "/books", `{"isbn": 1, "title": "Persuasion"}`, http.StatusInternalServerError, ""},
				{http.MethodGet, "/books/1", "", http.StatusOK, `{"isbn": 1, "title": "Emma", "phone_no": 0}`},
			},
		},
		{
			name: "missing title",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 1}`, http.StatusInternalServerError, ""},
				{http.MethodGet, "/books", "", http.StatusOK, `[]`},
			},
		},
		{
			name: "negative isbn is never stored",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": -5, "title": "T"}`, http.StatusInternalServerError, ""},
				{http.MethodGet, "/books", "", http.StatusOK, `[]`},
			},
		},
		{
			name: "malformed body",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": `, http.StatusInternalServerError, ""},
			},
		},
		{
			name: "list in isbn order",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 2, "title": "B"}`, http.StatusCreated, ""},
				{http.MethodPost, "/books", `{"isbn": 1, "title": "A"}`, http.StatusCreated, ""},
				{http.MethodGet, "/books", "", http.StatusOK, `[{"isbn": 1, "title": "A", "phone_no": 0}, {"isbn": 2, "title": "B", "phone_no": 0}]`},
			},
		},
		{
			name: "update takes isbn from path",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 7, "title": "Old"}`, http.StatusCreated, ""},
				{http.MethodPut, "/books/7", `{"title": "New"}`, http.StatusOK, `{"isbn": 7, "title": "New", "phone_no": 0}`},
				{http.MethodPatch, "/books/7", `{"title": "Newer", "phone_no": 3}`, http.StatusOK, `{"isbn": 7, "title": "Newer", "phone_no": 3}`},
				{http.MethodGet, "/books/7", "", http.StatusOK, `{"isbn": 7, "title": "Newer", "phone_no": 3}`},
			},
		},
		{
			name: "update with mismatched isbn",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 7, "title": "Old"}`, http.StatusCreated, ""},
				{http.MethodPut, "/books/7", `{"isbn": 8, "title": "New"}`, http.StatusInternalServerError, ""},
			},
		},
		{
			name: "delete",
			requests: []request{
				{http.MethodPost, "/books", `{"isbn": 3, "title": "Gone"}`, http.StatusCreated, ""},
				{http.MethodDelete, "/books/3", "", http.StatusOK, `{"isbn": 3, "title": "Gone", "phone_no": 0}`},
				{http.MethodGet, "/books/3", "", http.StatusInternalServerError, ""},
				{http.MethodDelete, "/books/3", "", http.StatusInternalServerError, ""},
			},
		},
		{
			name: "non-numeric isbn is not routed",
			requests: []request{
				{http.MethodGet, "/books/abc", "", http.StatusNotFound, `{"message": "The requested resource was not found", "error": "Not Found"}`},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := getInitializedServer(t, config.Config{}).Handler()

			for i, r := range tc.requests {
				assert := assert.New(t)

				w := do(t, h, r.method, r.path, r.body)

				if !assert.Equal(r.expectStatus, w.Code, "request %d: %s %s: body %s", i, r.method, r.path, w.Body.String()) {
					continue
				}
				assert.Equal("application/json", w.Header().Get("Content-Type"))
				if r.expectBody != "" {
					assert.JSONEq(r.expectBody, w.Body.String(), "request %d", i)
				}
				if w.Code == http.StatusInternalServerError {
					assert.Contains(w.Body.String(), `"message":"An unexpected error occurred"`)
				}
			}
		})
	}
}

func Test_Server_errorBody(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{}).Handler()

	w := do(t, h, http.MethodGet, "/books/404", "")

	assert.Equal(http.StatusInternalServerError, w.Code)
	assert.Contains(w.Body.String(), `"message":"An unexpected error occurred"`)
	assert.Contains(w.Body.String(), "the requested entity could not be found")
	assert.NotEmpty(w.Header().Get(sequence.HeaderRequestID))
}

func Test_Server_ping(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{AppName: "Stacks"}).Handler()

	w := do(t, h, http.MethodGet, "/ping", "")

	assert.Equal(http.StatusOK, w.Code)
	assert.JSONEq(`{"message": "Hello from Stacks", "app_name": "Stacks"}`, w.Body.String())
}

func Test_Server_methodNotAllowed(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{}).Handler()

	w := do(t, h, http.MethodDelete, "/books", "")

	assert.Equal(http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(`{"message": "Method DELETE is not allowed for /books", "error": "Method Not Allowed"}`, w.Body.String())
}

func Test_Server_uriBase(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{URIBase: "/api/v1"}).Handler()

	assert.Equal(http.StatusOK, do(t, h, http.MethodGet, "/api/v1/books", "").Code)
	assert.Equal(http.StatusNotFound, do(t, h, http.MethodGet, "/books", "").Code)
	assert.Equal(http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/shelves", "").Code)
	assert.Equal(http.StatusOK, do(t, h, http.MethodGet, "/ping", "").Code)
}

func Test_Server_metrics(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{Interceptors: []string{"metrics", "log"}}).Handler()

	do(t, h, http.MethodGet, "/books", "")
	do(t, h, http.MethodGet, "/books/1", "")
	w := do(t, h, http.MethodGet, "/metrics", "")

	assert.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(body, `lectern_invocation_total{outcome="success",target="operations.books.list"} 1`)
	assert.Contains(body, `lectern_invocation_total{outcome="error",target="operations.books.get"} 1`)
	assert.Contains(body, "go_goroutines")
}

func Test_Server_throttle(t *testing.T) {
	assert := assert.New(t)
	h := getInitializedServer(t, config.Config{
		Interceptors: []string{"throttle"},
		Throttle:     config.Throttle{RPS: 0.001, Burst: 1},
	}).Handler()

	first := do(t, h, http.MethodGet, "/books", "")
	second := do(t, h, http.MethodGet, "/books", "")
	other := do(t, h, http.MethodGet, "/ping", "")

	assert.Equal(http.StatusOK, first.Code)
	assert.Equal(http.StatusInternalServerError, second.Code)
	assert.Contains(second.Body.String(), "too many invocations")
	assert.Equal(http.StatusOK, other.Code)
}

func Test_Server_requireToken(t *testing.T) {
	tok, err := token.Generate(testSecret, "librarian", time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name         string
		method       string
		path         string
		hdrs         []string
		expectStatus int
	}{
		{name: "no token", method: http.MethodGet, path: "/books", expectStatus: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/books", hdrs: []string{"Authorization", "Bearer nope"}, expectStatus: http.StatusUnauthorized},
		{name: "good token", method: http.MethodGet, path: "/books", hdrs: []string{"Authorization", "Bearer " + tok}, expectStatus: http.StatusOK},
		{name: "ping is open", method: http.MethodGet, path: "/ping", expectStatus: http.StatusOK},
	}

	h := getInitializedServer(t, config.Config{TokenSecret: testSecret}).Handler()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, tc.method, tc.path, "", tc.hdrs...)

			assert.Equal(t, tc.expectStatus, w.Code)
		})
	}
}

func Test_Server_RoutesIndex(t *testing.T) {
	assert := assert.New(t)
	srv := getInitializedServer(t, config.Config{})

	idx := srv.RoutesIndex()

	assert.Contains(idx, "* /books/ - GET, POST")
	assert.Contains(idx, `* /books/{isbn:\d+} - DELETE, GET, PATCH, PUT`)
	assert.Contains(idx, "* /metrics - GET")
	assert.Contains(idx, "* /ping - GET")
}

func Test_Server_ServeForever_And_Shutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping long-running tests that require server up")
	}

	assert := assert.New(t)

	// find a free port
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	srv, err := (&Environment{}).NewServer(&config.Config{Port: port})
	require.NoError(t, err)

	retErrChan := make(chan error)
	go func() {
		retErrChan <- srv.ServeForever()
	}()

	url := fmt.Sprintf("http://localhost:%d/ping", port)
	assert.Eventually(func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	assert.Error(srv.ServeForever(), "second ServeForever should fail while running")

	timeLimitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(timeLimitCtx)
	serveForeverErr := <-retErrChan

	assert.NoError(shutdownErr)
	assert.ErrorIs(serveForeverErr, http.ErrServerClosed)
	assert.Error(srv.Shutdown(context.Background()))
	assert.Error(srv.ServeForever())
}
