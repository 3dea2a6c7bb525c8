package tapfix

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	gocheck "gopkg.in/check.v1"
)

type APISuite struct {
	api       *API
	scenarios *Scenarios
	server    *httptest.Server
	id        string
}

var _ = gocheck.Suite(&APISuite{})

func (s *APISuite) SetUpTest(c *gocheck.C) {
	cfg, err := NewDefaultServerConfig()
	c.Assert(err, gocheck.IsNil)
	cfg.API.RateLimit.CPS = 0
	s.scenarios = NewScenarios(time.Minute, time.Minute, nil)
	s.api = NewAPI(s.scenarios, cfg, nil)
	s.server = httptest.NewServer(s.api.Handler())
	s.id, _ = s.scenarios.Begin()
}

func (s *APISuite) TearDownTest(c *gocheck.C) {
	s.server.Close()
}

func (s *APISuite) request(c *gocheck.C, method, path, body string) (int, string) {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	c.Assert(err, gocheck.IsNil)
	resp, err := s.server.Client().Do(req)
	c.Assert(err, gocheck.IsNil)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	c.Assert(err, gocheck.IsNil)
	return resp.StatusCode, string(data)
}

func (s *APISuite) scenarioPath(suffix string) string {
	return "/scenarios/" + s.id + suffix
}

func (s *APISuite) TestStatusHandler(c *gocheck.C) {
	status, body := s.request(c, http.MethodGet, "/status", "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(body, gocheck.Equals, "ok")
}

func (s *APISuite) TestBeginAndEnd(c *gocheck.C) {
	status, body := s.request(c, http.MethodPost, "/scenarios", "")
	c.Assert(status, gocheck.Equals, http.StatusCreated)
	var resp ScenarioResponse
	c.Assert(json.Unmarshal([]byte(body), &resp), gocheck.IsNil)
	_, err := s.scenarios.Get(resp.ID)
	c.Assert(err, gocheck.IsNil)

	status, _ = s.request(c, http.MethodDelete, "/scenarios/"+resp.ID, "")
	c.Assert(status, gocheck.Equals, http.StatusNoContent)
	status, body = s.request(c, http.MethodDelete, "/scenarios/"+resp.ID, "")
	c.Assert(status, gocheck.Equals, http.StatusNotFound)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeScenarioNotFound)
}

func (s *APISuite) TestTapLifecycle(c *gocheck.C) {
	status, body := s.request(c, http.MethodPut, s.scenarioPath("/taps/t2"),
		`{"input_type": "flow", "options": {"port": 2055, "bpf": "ignored"}}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(body, gocheck.Equals, `{"t2":{"input_type":"flow","config":{"port":2055},"filter":{}}}`)

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/taps/t2/config"), `{"bind": "0.0.0.0"}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "t2.config").Raw, gocheck.Equals, `{"port":2055,"bind":"0.0.0.0"}`)

	status, body = s.request(c, http.MethodDelete, s.scenarioPath("/taps/t2/config?key=port"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "t2.config").Raw, gocheck.Equals, `{"bind":"0.0.0.0"}`)

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/taps/t2/filter"), `{"only_hosts": "a"}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "t2.filter.only_hosts").String(), gocheck.Equals, "a")

	status, body = s.request(c, http.MethodDelete, s.scenarioPath("/taps/t2/filter?key=only_hosts"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "t2.filter").Raw, gocheck.Equals, `{}`)

	status, body = s.request(c, http.MethodDelete, s.scenarioPath("/taps/t2"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(body, gocheck.Equals, `{}`)

	status, body = s.request(c, http.MethodDelete, s.scenarioPath("/taps/t2"), "")
	c.Assert(status, gocheck.Equals, http.StatusNotFound)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeTapNotFound)
}

func (s *APISuite) TestTags(c *gocheck.C) {
	s.request(c, http.MethodPut, s.scenarioPath("/taps/a"), `{"input_type": "pcap"}`)
	s.request(c, http.MethodPut, s.scenarioPath("/taps/b"), `{"input_type": "dnstap"}`)

	status, body := s.request(c, http.MethodPost, s.scenarioPath("/tags"), `{"env": "staging"}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "a.tags.env").String(), gocheck.Equals, "staging")
	c.Assert(gjson.Get(body, "b.tags.env").String(), gocheck.Equals, "staging")

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/taps/a/tags"), `{"team": "net"}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "b.tags.team").Exists(), gocheck.Equals, false)

	status, body = s.request(c, http.MethodGet, s.scenarioPath("/tags"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	var ts TagSet
	c.Assert(json.Unmarshal([]byte(body), &ts), gocheck.IsNil)
	c.Assert(ts, gocheck.DeepEquals, TagSet{
		"a": Tags{"env": "staging", "team": "net"},
		"b": Tags{"env": "staging"},
	})

	status, body = s.request(c, http.MethodDelete, s.scenarioPath("/tags?key=env"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "a.tags").Raw, gocheck.Equals, `{"team":"net"}`)
	c.Assert(gjson.Get(body, "b.tags").Raw, gocheck.Equals, `{}`)

	status, _ = s.request(c, http.MethodDelete, s.scenarioPath("/taps/nope/tags?key=env"), "")
	c.Assert(status, gocheck.Equals, http.StatusNotFound)

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/tags"), `{"owner": null}`)
	c.Assert(status, gocheck.Equals, http.StatusBadRequest)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeBadRequest)
	_, body = s.request(c, http.MethodGet, s.scenarioPath("/taps"), "")
	c.Assert(gjson.Get(body, "a.tags.owner").Exists(), gocheck.Equals, false)
}

func (s *APISuite) TestJSONEscapesInBodies(c *gocheck.C) {
	status, body := s.request(c, http.MethodPut, s.scenarioPath("/taps/p"),
		`{"input_type": "pcap", "options": {"pcap_file": "a\/b.pcap", "bpf": "port 53 && udp"}}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "p.config.pcap_file").String(), gocheck.Equals, "a/b.pcap")
	c.Assert(gjson.Get(body, "p.filter").Raw, gocheck.Equals, `{"bpf":"port 53 && udp"}`)

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/taps/p/tags"), `{"owner": "caf\u00e9 \ud83d\ude00"}`)
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(gjson.Get(body, "p.tags.owner").String(), gocheck.Equals, "caf\u00e9 \U0001F600")
}

func (s *APISuite) TestDocumentFormats(c *gocheck.C) {
	s.request(c, http.MethodPut, s.scenarioPath("/taps/f"), `{"input_type": "flow", "options": {"port": 2055}}`)

	status, body := s.request(c, http.MethodGet, s.scenarioPath("/taps?format=yaml"), "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	c.Assert(body, gocheck.Equals, "f:\n  input_type: flow\n  config:\n    port: 2055\n  filter: {}\n")

	status, _ = s.request(c, http.MethodGet, s.scenarioPath("/taps?format=xml"), "")
	c.Assert(status, gocheck.Equals, http.StatusInternalServerError)
}

func (s *APISuite) TestBadRequests(c *gocheck.C) {
	status, body := s.request(c, http.MethodPut, s.scenarioPath("/taps/x"), `{"input_type": "sflow"}`)
	c.Assert(status, gocheck.Equals, http.StatusBadRequest)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeUnknownInputType)

	status, body = s.request(c, http.MethodPut, s.scenarioPath("/taps/x"), `{"input_type": [`)
	c.Assert(status, gocheck.Equals, http.StatusBadRequest)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeBadRequest)

	status, body = s.request(c, http.MethodPost, s.scenarioPath("/taps/x/config"), `{"iface": "eth0"}`)
	c.Assert(status, gocheck.Equals, http.StatusNotFound)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeMissingTap)

	status, body = s.request(c, http.MethodGet, "/scenarios/unknown/taps", "")
	c.Assert(status, gocheck.Equals, http.StatusNotFound)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeScenarioNotFound)
}

func (s *APISuite) TestStrictScenarios(c *gocheck.C) {
	cfg, _ := NewDefaultServerConfig()
	cfg.Registry.Strict = true
	scenarios := NewScenarios(time.Minute, time.Minute, nil, cfg.RegistryOptions()...)
	server := httptest.NewServer(NewAPI(scenarios, cfg, nil).Handler())
	defer server.Close()
	id, _ := scenarios.Begin()

	resp, err := server.Client().Post(server.URL+"/scenarios/"+id+"/taps/p", "application/json", nil)
	c.Assert(err, gocheck.IsNil)
	resp.Body.Close()
	// Only PUT creates taps
	c.Assert(resp.StatusCode, gocheck.Equals, http.StatusMethodNotAllowed)

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/scenarios/"+id+"/taps/p",
		strings.NewReader(`{"input_type": "pcap", "options": {"port": 1}}`))
	resp, err = server.Client().Do(req)
	c.Assert(err, gocheck.IsNil)
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	c.Assert(resp.StatusCode, gocheck.Equals, http.StatusBadRequest)
	c.Assert(gjson.GetBytes(body, "code").String(), gocheck.Equals, CodeUnknownOption)
}

func (s *APISuite) TestRateLimit(c *gocheck.C) {
	s.api.SetRateLimit(RateLimitConfig{CPS: 0.001, Burst: 1})
	status, _ := s.request(c, http.MethodGet, "/status", "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
	status, body := s.request(c, http.MethodGet, "/status", "")
	c.Assert(status, gocheck.Equals, http.StatusTooManyRequests)
	c.Assert(gjson.Get(body, "code").String(), gocheck.Equals, CodeRateLimited)

	s.api.SetRateLimit(RateLimitConfig{})
	status, _ = s.request(c, http.MethodGet, "/status", "")
	c.Assert(status, gocheck.Equals, http.StatusOK)
}
