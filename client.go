// Client for driving a scenario registry on a remote fixture server.
package tapfix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
)

/*
A sample document looks like this:

{
    "t1": {
        "input_type": "pcap",
        "config": {
            "iface": "eth0"
        },
        "filter": {
            "bpf": "tcp port 80"
        },
        "tags": {
            "env": "staging"
        }
    }
}
*/

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client drives one scenario on a fixture server. It implements Driver, so
// scripts run the same against it as against a local Registry.
type Client struct {
	baseURL  string
	scenario string
	doer     Doer
}

var _ Driver = (*Client)(nil)

// NewClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:5050". Call Begin before any tap operation.
func NewClient(baseURL string, doer Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{baseURL: baseURL, doer: doer}
}

// Scenario returns the ID of the scenario the client drives.
func (c *Client) Scenario() string {
	return c.scenario
}

// Begin starts a new scenario on the server and makes it the client's.
func (c *Client) Begin() (string, error) {
	var resp ScenarioResponse
	body, err := c.do(http.MethodPost, "/scenarios", nil, nil)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode scenario: %w", err)
	}
	c.scenario = resp.ID
	return resp.ID, nil
}

// Attach makes the client drive an existing scenario.
func (c *Client) Attach(id string) {
	c.scenario = id
}

// End discards the client's scenario.
func (c *Client) End() error {
	_, err := c.do(http.MethodDelete, c.scenarioPath(""), nil, nil)
	return err
}

// Document fetches the current document.
func (c *Client) Document() (*Taps, error) {
	return c.taps(http.MethodGet, c.scenarioPath("/taps"), nil, nil)
}

// TagSet fetches the tags of every tap which has any.
func (c *Client) TagSet() (TagSet, error) {
	body, err := c.do(http.MethodGet, c.scenarioPath("/tags"), nil, nil)
	if err != nil {
		return nil, err
	}
	ts := make(TagSet)
	if err := json.Unmarshal(body, &ts); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return ts, nil
}

// AddTap creates or replaces a tap.
func (c *Client) AddTap(it InputType, name string, opts ...Option) (*Taps, error) {
	req := TapRequest{InputType: string(it), Options: NewOptions(opts...)}
	return c.taps(http.MethodPut, c.tapPath(name, ""), nil, req)
}

// AddConfig merges opts into a tap's config.
func (c *Client) AddConfig(name string, opts ...Option) (*Taps, error) {
	return c.taps(http.MethodPost, c.tapPath(name, "/config"), nil, NewOptions(opts...))
}

// AddFilter merges opts into a tap's filter.
func (c *Client) AddFilter(name string, opts ...Option) (*Taps, error) {
	return c.taps(http.MethodPost, c.tapPath(name, "/filter"), nil, NewOptions(opts...))
}

// AddTag sets tags on the targeted taps.
func (c *Client) AddTag(target Target, tags ...Tag) (*Taps, error) {
	body := &Options{}
	for _, tag := range tags {
		body.Set(tag.Key, tag.Value)
	}
	return c.taps(http.MethodPost, c.tagsPath(target), nil, body)
}

// RemoveTap deletes a tap.
func (c *Client) RemoveTap(name string) (*Taps, error) {
	return c.taps(http.MethodDelete, c.tapPath(name, ""), nil, nil)
}

// RemoveConfigs deletes config keys from a tap.
func (c *Client) RemoveConfigs(name string, keys ...string) (*Taps, error) {
	return c.taps(http.MethodDelete, c.tapPath(name, "/config"), keyQuery(keys), nil)
}

// RemoveFilters deletes filter keys from a tap.
func (c *Client) RemoveFilters(name string, keys ...string) (*Taps, error) {
	return c.taps(http.MethodDelete, c.tapPath(name, "/filter"), keyQuery(keys), nil)
}

// RemoveTag deletes tag keys from the targeted taps.
func (c *Client) RemoveTag(target Target, keys ...string) (*Taps, error) {
	return c.taps(http.MethodDelete, c.tagsPath(target), keyQuery(keys), nil)
}

func (c *Client) scenarioPath(suffix string) string {
	return "/scenarios/" + url.PathEscape(c.scenario) + suffix
}

func (c *Client) tapPath(name, suffix string) string {
	return c.scenarioPath("/taps/" + url.PathEscape(name) + suffix)
}

func (c *Client) tagsPath(target Target) string {
	if target.IsAll() {
		return c.scenarioPath("/tags")
	}
	return c.tapPath(target.Name(), "/tags")
}

func keyQuery(keys []string) url.Values {
	return url.Values{"key": keys}
}

// taps performs a request answered with a JSON document.
func (c *Client) taps(method, path string, query url.Values, payload interface{}) (*Taps, error) {
	body, err := c.do(method, path, query, payload)
	if err != nil {
		return nil, err
	}
	return LoadTaps(body)
}

func (c *Client) do(method, path string, query url.Values, payload interface{}) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("format", "json")
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.Status, body)
	}
	return body, nil
}

// decodeAPIError maps an error body back to the matching sentinel, so
// errors.Is works the same against a Client as against a Registry.
func decodeAPIError(status string, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("status: %s (%s)", status, body)
	}
	var sentinel error
	switch apiErr.Code {
	case CodeScenarioNotFound:
		sentinel = ErrScenarioNotFound
	case CodeTapNotFound:
		sentinel = ErrTapNotFound
	case CodeMissingTap:
		sentinel = ErrMissingTap
	case CodeUnknownOption:
		sentinel = ErrUnknownOption
	case CodeUnknownInputType:
		sentinel = ErrUnknownInputType
	default:
		return fmt.Errorf("status: %s (%s: %s)", status, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w (remote: %s)", sentinel, apiErr.Message)
}
