package lectern

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dekarrin/lectern/internal/sorted"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	fieldISBN    = "isbn"
	fieldTitle   = "title"
	fieldPhoneNo = "phone_no"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank: %v", err))
	}

	return v
}

// Book is the entity stored by lectern. ISBN identifies it and is supplied by
// the client; it is never generated. Any field in a Book's JSON representation
// that is not one of the well-known ones is kept in Extra and persisted as-is.
type Book struct {
	// ISBN is the identifier of the book. A value of 0 means it was not set;
	// set values are always positive.
	ISBN int64 `json:"isbn" validate:"required,gt=0"`

	// Title is the title of the book. It is required at creation and must
	// contain more than whitespace.
	Title string `json:"title" validate:"required,notblank"`

	// PhoneNo is an optional number that defaults to 0.
	PhoneNo int64 `json:"phone_no"`

	// Extra holds all other named fields. Keys never include "isbn", "title",
	// or "phone_no".
	Extra map[string]any `json:"-"`
}

// ModelID returns the ISBN of the Book.
func (b Book) ModelID() int64 {
	return b.ISBN
}

// Validate checks that all required fields of the Book are set to valid values.
// If any are not, the returned error will return true for errors.Is(err,
// ErrValidation).
func (b Book) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}

	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return NewError("validate book", err, ErrValidation)
	}

	var missing, invalid []string
	for i := range valErrs {
		if valErrs[i].Tag() == "required" {
			missing = append(missing, valErrs[i].Field())
		} else {
			invalid = append(invalid, valErrs[i].Field())
		}
	}

	var msgs []string
	if len(missing) > 0 {
		msgs = append(msgs, "missing required field(s): "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		msgs = append(msgs, "invalid field(s): "+strings.Join(invalid, ", "))
	}

	return NewError(strings.Join(msgs, "; "), ErrValidation)
}

// Field returns the value of the named field. Well-known fields are returned
// from their struct members; all others come from Extra.
func (b Book) Field(name string) (any, bool) {
	switch name {
	case fieldISBN:
		return b.ISBN, true
	case fieldTitle:
		return b.Title, true
	case fieldPhoneNo:
		return b.PhoneNo, true
	default:
		v, ok := b.Extra[name]
		return v, ok
	}
}

// ExtraFields returns the alphabetized names of all fields held in Extra.
func (b Book) ExtraFields() []string {
	return sorted.Keys(b.Extra)
}

// MarshalJSON converts the Book into a flat JSON object containing the
// well-known fields and every extra field.
func (b Book) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		m[k] = v
	}

	m[fieldISBN] = b.ISBN
	m[fieldTitle] = b.Title
	m[fieldPhoneNo] = b.PhoneNo

	return json.Marshal(m)
}

// UnmarshalJSON sets the Book from a flat JSON object. Fields that are not
// well-known are placed in Extra. A null or absent phone_no results in the
// default of 0.
func (b *Book) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Book

	if v, ok := raw[fieldISBN]; ok {
		if err := json.Unmarshal(v, &decoded.ISBN); err != nil {
			return fmt.Errorf("%s: must be an integer", fieldISBN)
		}
		delete(raw, fieldISBN)
	}
	if v, ok := raw[fieldTitle]; ok {
		if err := json.Unmarshal(v, &decoded.Title); err != nil {
			return fmt.Errorf("%s: must be a string", fieldTitle)
		}
		delete(raw, fieldTitle)
	}
	if v, ok := raw[fieldPhoneNo]; ok {
		if err := json.Unmarshal(v, &decoded.PhoneNo); err != nil {
			return fmt.Errorf("%s: must be an integer", fieldPhoneNo)
		}
		delete(raw, fieldPhoneNo)
	}

	if len(raw) > 0 {
		decoded.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			dec := json.NewDecoder(bytes.NewReader(v))
			dec.UseNumber()
			if err := dec.Decode(&val); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			decoded.Extra[k] = val
		}
	}

	*b = decoded
	return nil
}
