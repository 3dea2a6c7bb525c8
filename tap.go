package tapfix

import (
	"fmt"
	"strings"
)

// InputType identifies the kind of capture source a tap describes.
type InputType string

const (
	Pcap   InputType = "pcap"
	Flow   InputType = "flow"
	Dnstap InputType = "dnstap"
)

// ParseInputType converts s into one of the known input types.
func ParseInputType(s string) (InputType, error) {
	it := InputType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalog[it]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInputType, s)
	}
	return it, nil
}

// Variant lists the keys a tap of one input type reads from its options, and
// which of those are filters rather than config.
type Variant struct {
	Config []string
	Filter []string
}

// catalog is the fixed set of recognised keys per input type.
var catalog = map[InputType]Variant{
	Pcap: {
		Config: []string{"pcap_file", "pcap_source", "iface", "host_spec", "debug"},
		Filter: []string{"bpf"},
	},
	Flow: {
		Config: []string{"pcap_file", "port", "bind", "flow_type"},
	},
	Dnstap: {
		Config: []string{"dnstap_file", "socket", "tcp"},
		Filter: []string{"only_hosts"},
	},
}

// VariantOf returns the catalog entry for it.
func VariantOf(it InputType) (Variant, bool) {
	v, ok := catalog[it]
	return v, ok
}

func (v Variant) isConfig(key string) bool {
	return contains(v.Config, key)
}

func (v Variant) isFilter(key string) bool {
	return contains(v.Filter, key)
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Tap is a named configuration record for one capture source.
//
// Tags stays nil until the first tag is added; after that it persists, even
// when every tag has been removed again.
type Tap struct {
	Name      string    `json:"-" yaml:"-"`
	InputType InputType `json:"input_type" yaml:"input_type"`
	Config    *Options  `json:"config" yaml:"config"`
	Filter    *Options  `json:"filter" yaml:"filter"`
	Tags      *Options  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// NewTap returns an empty tap of the given input type.
func NewTap(name string, it InputType) *Tap {
	return &Tap{
		Name:      name,
		InputType: it,
		Config:    &Options{},
		Filter:    &Options{},
	}
}

// Clone returns a copy of t which shares no maps with it.
func (t *Tap) Clone() *Tap {
	c := &Tap{
		Name:      t.Name,
		InputType: t.InputType,
		Config:    t.Config.Clone(),
		Filter:    t.Filter.Clone(),
	}
	if t.Tags != nil {
		c.Tags = t.Tags.Clone()
	}
	return c
}

// Equal compares two taps ignoring key order.
func (t *Tap) Equal(other *Tap) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.InputType != other.InputType {
		return false
	}
	if (t.Tags == nil) != (other.Tags == nil) {
		return false
	}
	return t.Config.Equal(other.Config) &&
		t.Filter.Equal(other.Filter) &&
		t.Tags.Equal(other.Tags)
}

// PcapConfig is the typed form of the options a pcap tap reads.
type PcapConfig struct {
	PcapFile   string
	PcapSource string
	Iface      string
	HostSpec   string
	Debug      *bool
	BPF        string
}

// Options returns the non-zero fields as options, in catalog order.
func (c PcapConfig) Options() []Option {
	var opts []Option
	opts = appendString(opts, "pcap_file", c.PcapFile)
	opts = appendString(opts, "pcap_source", c.PcapSource)
	opts = appendString(opts, "iface", c.Iface)
	opts = appendString(opts, "host_spec", c.HostSpec)
	if c.Debug != nil {
		opts = append(opts, Opt("debug", *c.Debug))
	}
	return appendString(opts, "bpf", c.BPF)
}

// FlowConfig is the typed form of the options a flow tap reads.
type FlowConfig struct {
	PcapFile string
	Port     int
	Bind     string
	FlowType string
}

// Options returns the non-zero fields as options, in catalog order.
func (c FlowConfig) Options() []Option {
	var opts []Option
	opts = appendString(opts, "pcap_file", c.PcapFile)
	if c.Port != 0 {
		opts = append(opts, Opt("port", c.Port))
	}
	opts = appendString(opts, "bind", c.Bind)
	return appendString(opts, "flow_type", c.FlowType)
}

// DnstapConfig is the typed form of the options a dnstap tap reads.
type DnstapConfig struct {
	DnstapFile string
	Socket     string
	TCP        string
	OnlyHosts  string
}

// Options returns the non-zero fields as options, in catalog order.
func (c DnstapConfig) Options() []Option {
	var opts []Option
	opts = appendString(opts, "dnstap_file", c.DnstapFile)
	opts = appendString(opts, "socket", c.Socket)
	opts = appendString(opts, "tcp", c.TCP)
	return appendString(opts, "only_hosts", c.OnlyHosts)
}

func appendString(opts []Option, key, value string) []Option {
	if value == "" {
		return opts
	}
	return append(opts, Opt(key, value))
}
