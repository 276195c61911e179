// Package daotest provides a suite of tests that any dao.Connector must pass.
package daotest

import (
	"context"
	"testing"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/dao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConnectorSuite runs the common Connector behavior tests against
// connectors created by newConn. newConn is called once per subtest and must
// return a Connector that has not yet had Connect called on it. The suite
// closes every Connector it creates.
func RunConnectorSuite(t *testing.T, newConn func(t *testing.T) dao.Connector) {
	ctx := context.Background()

	connect := func(t *testing.T) dao.Connector {
		c := newConn(t)
		require.NoError(t, c.Connect(ctx))
		t.Cleanup(func() { c.Close() })
		return c
	}

	t.Run("insert then find", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		err := c.Insert(ctx, "books", "1", []byte(`{"isbn":1}`))
		require.NoError(t, err)

		doc, err := c.FindByID(ctx, "books", "1")
		assert.NoError(err)
		assert.JSONEq(`{"isbn":1}`, string(doc))
	})

	t.Run("duplicate insert", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		require.NoError(t, c.Insert(ctx, "books", "1", []byte(`{"isbn":1}`)))
		err := c.Insert(ctx, "books", "1", []byte(`{"isbn":1,"title":"again"}`))

		assert.ErrorIs(err, lectern.ErrDuplicateKey)

		doc, err := c.FindByID(ctx, "books", "1")
		assert.NoError(err)
		assert.JSONEq(`{"isbn":1}`, string(doc))
	})

	t.Run("same id in different collections", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		assert.NoError(c.Insert(ctx, "books", "1", []byte(`{"kind":"book"}`)))
		assert.NoError(c.Insert(ctx, "authors", "1", []byte(`{"kind":"author"}`)))

		doc, err := c.FindByID(ctx, "authors", "1")
		assert.NoError(err)
		assert.JSONEq(`{"kind":"author"}`, string(doc))
	})

	t.Run("find missing", func(t *testing.T) {
		c := connect(t)

		_, err := c.FindByID(ctx, "books", "404")

		assert.ErrorIs(t, err, lectern.ErrNotFound)
	})

	t.Run("find all", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		all, err := c.FindAll(ctx, "books")
		assert.NoError(err)
		assert.Empty(all)

		require.NoError(t, c.Insert(ctx, "books", "2", []byte(`{"isbn":2}`)))
		require.NoError(t, c.Insert(ctx, "books", "1", []byte(`{"isbn":1}`)))
		require.NoError(t, c.Insert(ctx, "other", "3", []byte(`{"isbn":3}`)))

		all, err = c.FindAll(ctx, "books")
		assert.NoError(err)
		if assert.Len(all, 2) {
			assert.JSONEq(`{"isbn":1}`, string(all[0]))
			assert.JSONEq(`{"isbn":2}`, string(all[1]))
		}
	})

	t.Run("update", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		err := c.Update(ctx, "books", "1", []byte(`{"isbn":1}`))
		assert.ErrorIs(err, lectern.ErrNotFound)

		require.NoError(t, c.Insert(ctx, "books", "1", []byte(`{"isbn":1}`)))
		assert.NoError(c.Update(ctx, "books", "1", []byte(`{"isbn":1,"title":"new"}`)))

		doc, err := c.FindByID(ctx, "books", "1")
		assert.NoError(err)
		assert.JSONEq(`{"isbn":1,"title":"new"}`, string(doc))
	})

	t.Run("delete", func(t *testing.T) {
		assert := assert.New(t)
		c := connect(t)

		err := c.Delete(ctx, "books", "1")
		assert.ErrorIs(err, lectern.ErrNotFound)

		require.NoError(t, c.Insert(ctx, "books", "1", []byte(`{"isbn":1}`)))
		assert.NoError(c.Delete(ctx, "books", "1"))

		_, err = c.FindByID(ctx, "books", "1")
		assert.ErrorIs(err, lectern.ErrNotFound)
	})

	t.Run("use after close", func(t *testing.T) {
		c := newConn(t)
		require.NoError(t, c.Connect(ctx))
		require.NoError(t, c.Close())

		_, err := c.FindByID(ctx, "books", "1")

		assert.ErrorIs(t, err, lectern.ErrConnector)
	})
}
