package sqldb

import (
	"database/sql/driver"
	"encoding/json"
	"reflect"
)

// This file contains matchers to be used with DATA-DOG/go-sqlmock.

// AnyDocument is a DATA-DOG/go-sqlmock compatible matcher used for matching
// against a JSON object document encoded as a string or byte slice.
//
// If With is set, the document must contain each of its keys with an equal
// value after JSON decoding. Numbers in With must be given as float64.
type AnyDocument struct {
	With map[string]any
}

func (m AnyDocument) Match(v driver.Value) bool {
	var data []byte

	switch typedV := v.(type) {
	case string:
		data = []byte(typedV)
	case []byte:
		data = typedV
	default:
		return false
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}

	for k, want := range m.With {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(want, got) {
			return false
		}
	}

	return true
}
