package lectern

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Book_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		book      Book
		expectErr bool
		expectMsg string
	}{
		{
			name: "all required fields present",
			book: Book{ISBN: 9780131103627, Title: "The C Programming Language"},
		},
		{
			name:      "missing title",
			book:      Book{ISBN: 9780131103627},
			expectErr: true,
			expectMsg: "missing required field(s): title",
		},
		{
			name:      "missing isbn",
			book:      Book{Title: "Go"},
			expectErr: true,
			expectMsg: "missing required field(s): isbn",
		},
		{
			name:      "negative isbn",
			book:      Book{ISBN: -5, Title: "T"},
			expectErr: true,
			expectMsg: "invalid field(s): isbn",
		},
		{
			name:      "blank title",
			book:      Book{ISBN: 12, Title: "   "},
			expectErr: true,
			expectMsg: "invalid field(s): title",
		},
		{
			name:      "missing isbn and blank title",
			book:      Book{Title: "\t"},
			expectErr: true,
			expectMsg: "missing required field(s): isbn; invalid field(s): title",
		},
		{
			name:      "missing both",
			book:      Book{PhoneNo: 5},
			expectErr: true,
			expectMsg: "missing required field(s): isbn, title",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			err := tc.book.Validate()

			if tc.expectErr {
				assert.Error(err)
				assert.ErrorIs(err, ErrValidation)
				assert.Equal(tc.expectMsg, err.Error())
			} else {
				assert.NoError(err)
			}
		})
	}
}

func Test_Book_UnmarshalJSON(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expect    Book
		expectErr bool
	}{
		{
			name:   "known fields only",
			input:  `{"isbn": 12, "title": "Dune", "phone_no": 555}`,
			expect: Book{ISBN: 12, Title: "Dune", PhoneNo: 555},
		},
		{
			name:   "phone_no defaults to 0",
			input:  `{"isbn": 12, "title": "Dune"}`,
			expect: Book{ISBN: 12, Title: "Dune"},
		},
		{
			name:   "extra fields are kept",
			input:  `{"isbn": 12, "title": "Dune", "author": "Herbert", "tags": ["sf"]}`,
			expect: Book{ISBN: 12, Title: "Dune", Extra: map[string]any{"author": "Herbert", "tags": []any{"sf"}}},
		},
		{
			name:      "isbn of wrong type",
			input:     `{"isbn": "twelve", "title": "Dune"}`,
			expectErr: true,
		},
		{
			name:      "not an object",
			input:     `[1, 2]`,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			var actual Book
			err := json.Unmarshal([]byte(tc.input), &actual)

			if tc.expectErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tc.expect, actual)
		})
	}
}

func Test_Book_MarshalJSON(t *testing.T) {
	assert := assert.New(t)

	b := Book{ISBN: 7, Title: "Emma", Extra: map[string]any{"year": 1815, "title": "ignored"}}

	data, err := json.Marshal(b)
	if !assert.NoError(err) {
		return
	}

	assert.JSONEq(`{"isbn": 7, "title": "Emma", "phone_no": 0, "year": 1815}`, string(data))
}

func Test_Book_Field(t *testing.T) {
	assert := assert.New(t)

	b := Book{ISBN: 7, Title: "Emma", Extra: map[string]any{"year": 1815, "author": "Austen"}}

	v, ok := b.Field("title")
	assert.True(ok)
	assert.Equal("Emma", v)

	v, ok = b.Field("year")
	assert.True(ok)
	assert.Equal(1815, v)

	_, ok = b.Field("publisher")
	assert.False(ok)

	assert.Equal([]string{"author", "year"}, b.ExtraFields())
}

func Test_WrapConnectorError(t *testing.T) {
	someErr := errors.New("disk on fire")

	testCases := []struct {
		name      string
		err       error
		msg       []any
		expectNil bool
		expectIs  []error
		expectMsg string
	}{
		{
			name:      "nil stays nil",
			err:       nil,
			expectNil: true,
		},
		{
			name:      "arbitrary error becomes connector error",
			err:       someErr,
			msg:       []any{"insert"},
			expectIs:  []error{someErr, ErrConnector},
			expectMsg: "insert: disk on fire",
		},
		{
			name:      "not found is preserved",
			err:       NewError("no book", ErrNotFound),
			expectIs:  []error{ErrNotFound},
			expectMsg: "no book: the requested entity could not be found",
		},
		{
			name:      "duplicate key is not also a connector error",
			err:       ErrDuplicateKey,
			msg:       []any{"insert"},
			expectIs:  []error{ErrDuplicateKey},
			expectMsg: "insert: an entity with the same identifier already exists",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual := WrapConnectorError(tc.err, tc.msg...)

			if tc.expectNil {
				assert.Nil(actual)
				return
			}

			for _, target := range tc.expectIs {
				assert.ErrorIs(actual, target)
			}
			if errors.Is(tc.err, ErrDuplicateKey) {
				assert.NotErrorIs(actual, ErrConnector)
			}
			assert.Equal(tc.expectMsg, actual.Error())
		})
	}
}
