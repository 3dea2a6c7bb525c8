// Tags are free-form key/value metadata attached to a tap, independent of its
// operational configuration.
//
// Example:
// Tags{"region": "eu", "env": "staging"}
package tapfix

import "fmt"

// Tag is a single tag pair.
type Tag struct {
	Key   string
	Value string
}

// Tags is a plain map form of a tap's tags.
type Tags map[string]string

// TagsFrom converts decoded key/value pairs into tags, in order. Values must
// be scalars; null, list and mapping values are rejected rather than stored
// as their printed form.
func TagsFrom(o *Options) ([]Tag, error) {
	tags := make([]Tag, 0, o.Len())
	for _, opt := range o.List() {
		switch opt.Value.(type) {
		case nil:
			return nil, fmt.Errorf("tag %q: value is null", opt.Key)
		case *Options, []interface{}:
			return nil, fmt.Errorf("tag %q: value must be a scalar", opt.Key)
		}
		tags = append(tags, Tag{Key: opt.Key, Value: fmt.Sprint(opt.Value)})
	}
	return tags, nil
}

// TagSet maps a tap name to the tags it carries.
type TagSet map[string]Tags

// Target selects the taps a tag operation applies to: either one tap by name
// or every tap registered at the time of the call.
type Target struct {
	name string
	all  bool
}

// One targets the single tap called name. A tap literally named "all" is
// still just that one tap.
func One(name string) Target {
	return Target{name: name}
}

// All targets every registered tap.
func All() Target {
	return Target{all: true}
}

// IsAll reports whether t targets every tap.
func (t Target) IsAll() bool {
	return t.all
}

// Name returns the targeted tap name, empty for All.
func (t Target) Name() string {
	return t.name
}

func (t Target) String() string {
	if t.all {
		return "<all>"
	}
	return t.name
}
