package model

import "encoding/json"

// Optional wraps a JSON field so that an omitted key can be told apart from
// a key that is present with a zero or null value. encoding/json only calls
// UnmarshalJSON for keys that appear in the document, including null ones.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON marks the field as set and decodes its value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Set = true
	o.Value = v
	return nil
}
