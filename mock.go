// Mock Driver used in `script_test.go`
package tapfix

import (
	"fmt"
	"strings"
)

// MockDriver records the operations it receives and answers each with
// NextTaps and NextErr.
type MockDriver struct {
	Calls    []string
	NextTaps *Taps
	NextErr  error
}

var _ Driver = (*MockDriver)(nil)

func (m *MockDriver) record(op string, args ...interface{}) (*Taps, error) {
	parts := []string{op}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	m.Calls = append(m.Calls, strings.Join(parts, " "))
	return m.NextTaps, m.NextErr
}

func (m *MockDriver) AddTap(it InputType, name string, opts ...Option) (*Taps, error) {
	return m.record("AddTap", it, name, optionKeys(opts))
}

func (m *MockDriver) AddConfig(name string, opts ...Option) (*Taps, error) {
	return m.record("AddConfig", name, optionKeys(opts))
}

func (m *MockDriver) AddFilter(name string, opts ...Option) (*Taps, error) {
	return m.record("AddFilter", name, optionKeys(opts))
}

func (m *MockDriver) AddTag(target Target, tags ...Tag) (*Taps, error) {
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		keys = append(keys, t.Key)
	}
	return m.record("AddTag", target, keys)
}

func (m *MockDriver) RemoveTap(name string) (*Taps, error) {
	return m.record("RemoveTap", name)
}

func (m *MockDriver) RemoveConfigs(name string, keys ...string) (*Taps, error) {
	return m.record("RemoveConfigs", name, keys)
}

func (m *MockDriver) RemoveFilters(name string, keys ...string) (*Taps, error) {
	return m.record("RemoveFilters", name, keys)
}

func (m *MockDriver) RemoveTag(target Target, keys ...string) (*Taps, error) {
	return m.record("RemoveTag", target, keys)
}

func optionKeys(opts []Option) []string {
	keys := make([]string, 0, len(opts))
	for _, o := range opts {
		keys = append(keys, o.Key)
	}
	return keys
}
