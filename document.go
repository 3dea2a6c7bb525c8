package tapfix

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v2"
)

// Taps is the fixture document: an insertion ordered mapping of tap name to
// Tap. It encodes to JSON and YAML with names in insertion order.
type Taps struct {
	names  []string
	byName map[string]*Tap
}

// NewTaps returns an empty document.
func NewTaps() *Taps {
	return &Taps{byName: make(map[string]*Tap)}
}

// LoadTaps parses a JSON or YAML fixture document.
func LoadTaps(data []byte) (*Taps, error) {
	taps := NewTaps()
	if err := unmarshalDocument(data, taps); err != nil {
		return nil, fmt.Errorf("failed to parse taps document: %w", err)
	}
	return taps, nil
}

// Get returns the tap called name.
func (ts *Taps) Get(name string) (*Tap, bool) {
	t, ok := ts.byName[name]
	return t, ok
}

// Has reports whether name is present.
func (ts *Taps) Has(name string) bool {
	_, ok := ts.byName[name]
	return ok
}

// Put inserts t, replacing any tap of the same name in its existing position.
func (ts *Taps) Put(t *Tap) {
	if ts.byName == nil {
		ts.byName = make(map[string]*Tap)
	}
	if _, ok := ts.byName[t.Name]; !ok {
		ts.names = append(ts.names, t.Name)
	}
	ts.byName[t.Name] = t
}

// Delete removes the tap called name and reports whether it was present.
func (ts *Taps) Delete(name string) bool {
	if _, ok := ts.byName[name]; !ok {
		return false
	}
	delete(ts.byName, name)
	for i, n := range ts.names {
		if n == name {
			ts.names = append(ts.names[:i], ts.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns a copy of the tap names in insertion order.
func (ts *Taps) Names() []string {
	names := make([]string, len(ts.names))
	copy(names, ts.names)
	return names
}

// Len returns the number of taps.
func (ts *Taps) Len() int {
	return len(ts.names)
}

// Clone returns a deep copy of ts.
func (ts *Taps) Clone() *Taps {
	c := NewTaps()
	for _, name := range ts.names {
		c.Put(ts.byName[name].Clone())
	}
	return c
}

// Equal compares two documents ignoring the order of taps and keys.
func (ts *Taps) Equal(other *Taps) bool {
	if ts.Len() != other.Len() {
		return false
	}
	for _, name := range ts.names {
		theirs, ok := other.byName[name]
		if !ok || !ts.byName[name].Equal(theirs) {
			return false
		}
	}
	return true
}

// TagSet collects the tags of every tap which has any.
func (ts *Taps) TagSet() TagSet {
	set := make(TagSet)
	for _, name := range ts.names {
		tap := ts.byName[name]
		if tap.Tags == nil {
			continue
		}
		tags := make(Tags, tap.Tags.Len())
		for _, opt := range tap.Tags.List() {
			if opt.Value == nil {
				tags[opt.Key] = ""
				continue
			}
			tags[opt.Key] = fmt.Sprint(opt.Value)
		}
		set[name] = tags
	}
	return set
}

// MarshalJSON writes taps in insertion order.
func (ts *Taps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ts.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalJSON(name)
		if err != nil {
			return nil, err
		}
		v, err := marshalJSON(ts.byName[name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode tap %q: %w", name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML implements yaml.Marshaler.
func (ts *Taps) MarshalYAML() (interface{}, error) {
	ms := make(yaml.MapSlice, 0, len(ts.names))
	for _, name := range ts.names {
		ms = append(ms, yaml.MapItem{Key: name, Value: ts.byName[name]})
	}
	return ms, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Missing config and filter
// sections decode as empty ones.
func (ts *Taps) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	out, err := tapsFromMapSlice(ms)
	if err != nil {
		return err
	}
	*ts = *out
	return nil
}

// UnmarshalJSON implements json.Unmarshaler and keeps the document order.
func (ts *Taps) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(data)
	if err != nil {
		return err
	}
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		if v == nil {
			return nil
		}
		return fmt.Errorf("expected a JSON object, got %T", v)
	}
	out, err := tapsFromMapSlice(ms)
	if err != nil {
		return err
	}
	*ts = *out
	return nil
}

func tapsFromMapSlice(ms yaml.MapSlice) (*Taps, error) {
	out := NewTaps()
	for _, item := range ms {
		name := fmt.Sprint(item.Key)
		tap, err := tapFromValue(name, item.Value)
		if err != nil {
			return nil, fmt.Errorf("tap %s: %w", name, err)
		}
		out.Put(tap)
	}
	return out, nil
}

// tapFromValue builds a tap from its decoded mapping. Unknown sections are
// ignored, and a missing config or filter becomes an empty one.
func tapFromValue(name string, v interface{}) (*Tap, error) {
	ms, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	var inputType string
	sections := make(map[string]*Options)
	for _, item := range ms {
		key := fmt.Sprint(item.Key)
		switch key {
		case "input_type":
			s, ok := item.Value.(string)
			if !ok {
				return nil, fmt.Errorf("input_type: expected a string, got %T", item.Value)
			}
			inputType = s
		case "config", "filter", "tags":
			switch section := item.Value.(type) {
			case nil:
				delete(sections, key)
			case yaml.MapSlice:
				sections[key] = optionsFromMapSlice(section)
			default:
				return nil, fmt.Errorf("%s: expected a mapping, got %T", key, item.Value)
			}
		}
	}
	it, err := ParseInputType(inputType)
	if err != nil {
		return nil, err
	}
	tap := NewTap(name, it)
	if c, ok := sections["config"]; ok {
		tap.Config = c
	}
	if f, ok := sections["filter"]; ok {
		tap.Filter = f
	}
	tap.Tags = sections["tags"]
	return tap, nil
}

// JSON encodes ts as a single JSON document.
func (ts *Taps) JSON() (string, error) {
	data, err := marshalJSON(ts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// YAML encodes ts as a YAML document.
func (ts *Taps) YAML() (string, error) {
	data, err := yaml.Marshal(ts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Encode writes ts in the named format, "json" or "yaml".
func (ts *Taps) Encode(format string) (string, error) {
	switch format {
	case "", "json":
		return ts.JSON()
	case "yaml", "yml":
		return ts.YAML()
	}
	return "", fmt.Errorf("unsupported format %q", format)
}
