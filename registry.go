// Package tapfix builds tap fixtures for behaviour-driven tests.
//
// A Registry holds named taps describing capture sources (pcap, flow,
// dnstap), each with config, filter and optional tags sections, and encodes
// the lot as a JSON or YAML document to feed a test or compare its output.
package tapfix

import (
	"fmt"

	"go.uber.org/zap"
)

// Driver is the set of fixture operations shared by a local Registry and a
// Client talking to a remote one. Every operation returns the full document
// after the change.
type Driver interface {
	AddTap(it InputType, name string, opts ...Option) (*Taps, error)
	AddConfig(name string, opts ...Option) (*Taps, error)
	AddFilter(name string, opts ...Option) (*Taps, error)
	AddTag(target Target, tags ...Tag) (*Taps, error)
	RemoveTap(name string) (*Taps, error)
	RemoveConfigs(name string, keys ...string) (*Taps, error)
	RemoveFilters(name string, keys ...string) (*Taps, error)
	RemoveTag(target Target, keys ...string) (*Taps, error)
}

// Registry owns the taps of one test scenario.
//
// It isn't safe for concurrent use; a scenario drives it from one goroutine,
// and the API serialises access per scenario.
type Registry struct {
	taps   *Taps
	strict bool
	log    *zap.Logger
}

var _ Driver = (*Registry)(nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithStrict makes add operations fail with ErrUnknownOption on keys outside
// the tap variant's catalog, instead of dropping them.
func WithStrict(strict bool) RegistryOption {
	return func(r *Registry) {
		r.strict = strict
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		taps: NewTaps(),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Taps returns the live document.
func (r *Registry) Taps() *Taps {
	return r.taps
}

// Tap returns the tap called name.
func (r *Registry) Tap(name string) (*Tap, error) {
	tap, ok := r.taps.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTapNotFound, name)
	}
	return tap, nil
}

// Load replaces the registry content with a copy of taps.
func (r *Registry) Load(taps *Taps) *Taps {
	r.taps = taps.Clone()
	r.log.Debug("Loaded taps", zap.Strings("taps", r.taps.Names()))
	return r.taps
}

// AddPcap registers a pcap tap. Recognised config keys are pcap_file,
// pcap_source, iface, host_spec and debug; bpf is a filter.
func (r *Registry) AddPcap(name string, opts ...Option) (*Taps, error) {
	return r.AddTap(Pcap, name, opts...)
}

// AddFlow registers a flow tap. Recognised config keys are pcap_file, port,
// bind and flow_type; flow taps have no filters.
func (r *Registry) AddFlow(name string, opts ...Option) (*Taps, error) {
	return r.AddTap(Flow, name, opts...)
}

// AddDnstap registers a dnstap tap. Recognised config keys are dnstap_file,
// socket and tcp; only_hosts is a filter.
func (r *Registry) AddDnstap(name string, opts ...Option) (*Taps, error) {
	return r.AddTap(Dnstap, name, opts...)
}

// AddTap registers a tap of the given input type, replacing any tap of the
// same name.
func (r *Registry) AddTap(it InputType, name string, opts ...Option) (*Taps, error) {
	variant, ok := VariantOf(it)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInputType, it)
	}
	tap, err := r.create(name, it, variant, opts)
	if err != nil {
		return nil, err
	}
	r.taps.Put(tap)
	r.log.Debug("Added tap",
		zap.String("tap", name),
		zap.String("input_type", string(it)),
		zap.Strings("config", tap.Config.Keys()),
		zap.Strings("filter", tap.Filter.Keys()))
	return r.taps, nil
}

// create builds a tap from the options its variant recognises. Options with
// a nil value count as not supplied.
func (r *Registry) create(name string, it InputType, v Variant, opts []Option) (*Tap, error) {
	tap := NewTap(name, it)
	for _, opt := range opts {
		switch {
		case v.isConfig(opt.Key):
			if opt.Value != nil {
				tap.Config.Set(opt.Key, opt.Value)
			}
		case v.isFilter(opt.Key):
			if opt.Value != nil {
				tap.Filter.Set(opt.Key, opt.Value)
			}
		case r.strict:
			return nil, fmt.Errorf("%w: %q for %s tap %q (config %v, filter %v)",
				ErrUnknownOption, opt.Key, it, name, v.Config, v.Filter)
		default:
			r.log.Debug("Ignoring unrecognised option",
				zap.String("tap", name),
				zap.String("input_type", string(it)),
				zap.String("option", opt.Key))
		}
	}
	return tap, nil
}

// AddConfig merges opts into the config section of the named tap, overwriting
// existing keys. Nil values are kept as explicit nulls.
func (r *Registry) AddConfig(name string, opts ...Option) (*Taps, error) {
	tap, ok := r.taps.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingTap, name)
	}
	if tap.Config == nil {
		tap.Config = &Options{}
	}
	tap.Config.Merge(opts...)
	r.log.Debug("Added config", zap.String("tap", name), zap.Strings("config", tap.Config.Keys()))
	return r.taps, nil
}

// AddFilter merges opts into the filter section of the named tap.
func (r *Registry) AddFilter(name string, opts ...Option) (*Taps, error) {
	tap, ok := r.taps.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingTap, name)
	}
	if tap.Filter == nil {
		tap.Filter = &Options{}
	}
	tap.Filter.Merge(opts...)
	r.log.Debug("Added filter", zap.String("tap", name), zap.Strings("filter", tap.Filter.Keys()))
	return r.taps, nil
}

// AddTag sets tags on the targeted taps, creating their tags section when
// missing. All applies to the taps registered right now only.
func (r *Registry) AddTag(target Target, tags ...Tag) (*Taps, error) {
	names, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		tap, _ := r.taps.Get(name)
		if tap.Tags == nil {
			tap.Tags = &Options{}
		}
		for _, tag := range tags {
			tap.Tags.Set(tag.Key, tag.Value)
		}
	}
	r.log.Debug("Added tags", zap.Stringer("target", target), zap.Strings("taps", names))
	return r.taps, nil
}

// RemoveTap deletes the named tap.
func (r *Registry) RemoveTap(name string) (*Taps, error) {
	if !r.taps.Delete(name) {
		return nil, fmt.Errorf("%w: %q", ErrTapNotFound, name)
	}
	r.log.Debug("Removed tap", zap.String("tap", name))
	return r.taps, nil
}

// RemoveConfigs deletes config keys from the named tap. Absent keys are
// ignored.
func (r *Registry) RemoveConfigs(name string, keys ...string) (*Taps, error) {
	tap, err := r.Tap(name)
	if err != nil {
		return nil, err
	}
	tap.Config.Remove(keys...)
	r.log.Debug("Removed config", zap.String("tap", name), zap.Strings("keys", keys))
	return r.taps, nil
}

// RemoveFilters deletes filter keys from the named tap. Absent keys are
// ignored.
func (r *Registry) RemoveFilters(name string, keys ...string) (*Taps, error) {
	tap, err := r.Tap(name)
	if err != nil {
		return nil, err
	}
	tap.Filter.Remove(keys...)
	r.log.Debug("Removed filter", zap.String("tap", name), zap.Strings("keys", keys))
	return r.taps, nil
}

// RemoveTag deletes tag keys from the targeted taps. Taps without a tags
// section and absent keys are ignored; an emptied tags section stays.
func (r *Registry) RemoveTag(target Target, keys ...string) (*Taps, error) {
	names, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		tap, _ := r.taps.Get(name)
		tap.Tags.Remove(keys...)
	}
	r.log.Debug("Removed tags", zap.Stringer("target", target), zap.Strings("keys", keys))
	return r.taps, nil
}

// JSON encodes the registry as a JSON document.
func (r *Registry) JSON() (string, error) {
	return r.taps.JSON()
}

// YAML encodes the registry as a YAML document.
func (r *Registry) YAML() (string, error) {
	return r.taps.YAML()
}

func (r *Registry) resolve(target Target) ([]string, error) {
	if target.IsAll() {
		return r.taps.Names(), nil
	}
	if !r.taps.Has(target.Name()) {
		return nil, fmt.Errorf("%w: %q", ErrTapNotFound, target.Name())
	}
	return []string{target.Name()}, nil
}
