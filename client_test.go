// Fixture client tests
package tapfix

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	gocheck "gopkg.in/check.v1"
)

var test_payload = `{"error": "tap not found: \"x\"", "code": "tap_not_found"}`

type ClientSuite struct {
	client *Client
	server *httptest.Server
}

var _ = gocheck.Suite(&ClientSuite{})

func (s *ClientSuite) SetUpTest(c *gocheck.C) {
	cfg, err := NewDefaultServerConfig()
	c.Assert(err, gocheck.IsNil)
	cfg.API.RateLimit.CPS = 0
	api := NewAPI(NewScenarios(time.Minute, time.Minute, nil), cfg, nil)
	s.server = httptest.NewServer(api.Handler())
	s.client = NewClient(s.server.URL, s.server.Client())
	_, err = s.client.Begin()
	c.Assert(err, gocheck.IsNil)
}

func (s *ClientSuite) TearDownTest(c *gocheck.C) {
	s.server.Close()
}

func (s *ClientSuite) TestMatchesLocalRegistry(c *gocheck.C) {
	local := NewRegistry()
	for _, d := range []Driver{local, s.client} {
		_, err := d.AddTap(Pcap, "t1", Opt("iface", "eth0"), Opt("bpf", "tcp port 80"))
		c.Assert(err, gocheck.IsNil)
		_, err = d.AddTap(Flow, "t2", Opt("port", 2055))
		c.Assert(err, gocheck.IsNil)
		_, err = d.AddConfig("t2", Opt("bind", "0.0.0.0"), Opt("flow_type", nil))
		c.Assert(err, gocheck.IsNil)
		_, err = d.AddFilter("t1", Opt("bpf", "udp"))
		c.Assert(err, gocheck.IsNil)
		_, err = d.AddTag(All(), Tag{"env", "staging"})
		c.Assert(err, gocheck.IsNil)
		_, err = d.AddTag(One("t1"), Tag{"team", "net"})
		c.Assert(err, gocheck.IsNil)
		_, err = d.RemoveConfigs("t2", "port")
		c.Assert(err, gocheck.IsNil)
		_, err = d.RemoveFilters("t1", "absent")
		c.Assert(err, gocheck.IsNil)
		_, err = d.RemoveTag(One("t2"), "env")
		c.Assert(err, gocheck.IsNil)
	}

	remote, err := s.client.Document()
	c.Assert(err, gocheck.IsNil)
	want, _ := local.JSON()
	got, _ := remote.JSON()
	c.Assert(got, gocheck.Equals, want)

	ts, err := s.client.TagSet()
	c.Assert(err, gocheck.IsNil)
	c.Assert(ts, gocheck.DeepEquals, local.Taps().TagSet())
}

func (s *ClientSuite) TestErrorsMapToSentinels(c *gocheck.C) {
	_, err := s.client.RemoveTap("x")
	c.Assert(errors.Is(err, ErrTapNotFound), gocheck.Equals, true)
	_, err = s.client.AddConfig("x", Opt("iface", "eth0"))
	c.Assert(errors.Is(err, ErrMissingTap), gocheck.Equals, true)
	_, err = s.client.AddTap(InputType("sflow"), "x")
	c.Assert(errors.Is(err, ErrUnknownInputType), gocheck.Equals, true)

	c.Assert(s.client.End(), gocheck.IsNil)
	_, err = s.client.Document()
	c.Assert(errors.Is(err, ErrScenarioNotFound), gocheck.Equals, true)
}

func (s *ClientSuite) TestAttach(c *gocheck.C) {
	_, err := s.client.AddTap(Dnstap, "d")
	c.Assert(err, gocheck.IsNil)
	other := NewClient(s.server.URL, nil)
	other.Attach(s.client.Scenario())
	taps, err := other.Document()
	c.Assert(err, gocheck.IsNil)
	c.Assert(taps.Has("d"), gocheck.Equals, true)
}

func (s *ClientSuite) TestScriptRunsRemotely(c *gocheck.C) {
	script, err := NewScript([]byte(exampleScript))
	c.Assert(err, gocheck.IsNil)
	remote, err := script.Run(s.client)
	c.Assert(err, gocheck.IsNil)
	local, err := script.Run(NewRegistry())
	c.Assert(err, gocheck.IsNil)
	c.Assert(remote.Equal(local), gocheck.Equals, true)
}

func (s *ClientSuite) TestDecodeAPIError(c *gocheck.C) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(test_payload))
	}))
	defer server.Close()
	client := NewClient(server.URL, server.Client())
	client.Attach("whatever")
	_, err := client.RemoveTap("x")
	c.Assert(errors.Is(err, ErrTapNotFound), gocheck.Equals, true)

	err = decodeAPIError("502 Bad Gateway", []byte("upstream down"))
	c.Assert(err, gocheck.ErrorMatches, `status: 502 Bad Gateway \(upstream down\)`)
}
