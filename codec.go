package tapfix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v2"
)

// looksLikeJSON reports whether data starts with a JSON object.
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// unmarshalDocument decodes a JSON object with encoding/json and anything
// else with the YAML decoder. A YAML flow mapping also starts with '{', so
// input the JSON decoder rejects gets a second try as YAML before the JSON
// error is returned.
func unmarshalDocument(data []byte, v interface{}) error {
	if !looksLikeJSON(data) {
		return yaml.Unmarshal(data, v)
	}
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if yaml.Unmarshal(data, v) == nil {
		return nil
	}
	return err
}

// decodeJSON decodes a single JSON value keeping object key order. Objects
// come back as yaml.MapSlice so the JSON and YAML paths share their
// conversion code, and numbers as int when integral, float64 otherwise,
// which is what the YAML decoder produces.
func decodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			ms := yaml.MapSlice{}
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				ms = append(ms, yaml.MapItem{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return ms, nil
		case '[':
			list := []interface{}{}
			for dec.More() {
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		return jsonNumber(t), nil
	}
	return tok, nil
}

func jsonNumber(n json.Number) interface{} {
	if i, err := strconv.ParseInt(string(n), 10, 0); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return string(n)
}

// marshalJSON is json.Marshal without HTML escaping, so filters such as
// "port 53 && udp" are written as given.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
