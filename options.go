package tapfix

import (
	"bytes"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v2"
)

// Option is a single key/value pair handed to an add operation.
type Option struct {
	Key   string
	Value interface{}
}

// Opt is shorthand for building an Option.
func Opt(key string, value interface{}) Option {
	return Option{Key: key, Value: value}
}

// Options is a string keyed map which remembers insertion order.
//
// It backs the config, filter and tags sections of a tap. Setting a key that
// already exists overwrites the value in place and keeps its position. The
// zero value is an empty, usable map.
type Options struct {
	keys   []string
	values map[string]interface{}
}

// NewOptions returns Options populated with opts, in order.
func NewOptions(opts ...Option) *Options {
	o := &Options{}
	o.Merge(opts...)
	return o
}

// Set stores value under key. Unlike the read methods, Set needs a non-nil
// receiver, as there is nowhere to store the value.
func (o *Options) Set(key string, value interface{}) {
	if o == nil {
		panic("tapfix: Set called on nil *Options")
	}
	if o.values == nil {
		o.values = make(map[string]interface{})
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored under key, and whether it was present at all.
// A present key may hold a nil value.
func (o *Options) Get(key string) (interface{}, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (o *Options) Delete(key string) bool {
	if o == nil {
		return false
	}
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Merge sets every option in turn.
func (o *Options) Merge(opts ...Option) {
	for _, opt := range opts {
		o.Set(opt.Key, opt.Value)
	}
}

// Remove deletes every key in turn. Absent keys are ignored.
func (o *Options) Remove(keys ...string) {
	for _, key := range keys {
		o.Delete(key)
	}
}

// Len returns the number of keys.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Options) Keys() []string {
	if o == nil {
		return []string{}
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// List returns the content as Option pairs in insertion order.
func (o *Options) List() []Option {
	opts := make([]Option, 0, o.Len())
	for _, key := range o.Keys() {
		opts = append(opts, Option{Key: key, Value: o.values[key]})
	}
	return opts
}

// Clone returns a shallow copy of o.
func (o *Options) Clone() *Options {
	return NewOptions(o.List()...)
}

// Equal reports whether o and other hold the same keys and values, ignoring
// order. Numbers compare by value regardless of their Go type, since decoded
// fixtures rarely keep the type the builder was given.
func (o *Options) Equal(other *Options) bool {
	if o.Len() != other.Len() {
		return false
	}
	for _, key := range o.Keys() {
		theirs, ok := other.Get(key)
		if !ok {
			return false
		}
		if !valuesEqual(o.values[key], theirs) {
			return false
		}
	}
	return true
}

// MapSlice converts o to the ordered form understood by the YAML encoder.
func (o *Options) MapSlice() yaml.MapSlice {
	ms := make(yaml.MapSlice, 0, o.Len())
	for _, opt := range o.List() {
		ms = append(ms, yaml.MapItem{Key: opt.Key, Value: opt.Value})
	}
	return ms
}

// MarshalJSON writes the keys in insertion order.
func (o *Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o.List() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalJSON(opt.Key)
		if err != nil {
			return nil, err
		}
		v, err := marshalJSON(opt.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", opt.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML implements yaml.Marshaler.
func (o *Options) MarshalYAML() (interface{}, error) {
	return o.MapSlice(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler and keeps the document order.
func (o *Options) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	*o = *optionsFromMapSlice(ms)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler and keeps the document order.
func (o *Options) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(data)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		return nil
	case yaml.MapSlice:
		*o = *optionsFromMapSlice(t)
		return nil
	}
	return fmt.Errorf("expected a JSON object, got %T", v)
}

func optionsFromMapSlice(ms yaml.MapSlice) *Options {
	o := &Options{}
	for _, item := range ms {
		o.Set(fmt.Sprint(item.Key), normalizeValue(item.Value))
	}
	return o
}

// normalizeValue turns nested ordered maps into Options so they encode back
// to JSON with string keys.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case yaml.MapSlice:
		return optionsFromMapSlice(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}

func valuesEqual(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if ao, ok := a.(*Options); ok {
		bo, ok := b.(*Options)
		return ok && ao.Equal(bo)
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
