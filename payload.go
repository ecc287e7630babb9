/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xdispatch

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MaxBodyBytes bounds how much of a request body is read into a payload
const MaxBodyBytes = 10 << 20

var restfulVerbs = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "delete": {}, "head": {},
	"patch": {}, "connect": {}, "options": {}, "trace": {},
}

// batchEntry is a single call of a multi or long-polling request. data is nil when the entry is not a JSON object.
type batchEntry struct {
	key  string
	data Params
}

// readPayload merges the query string, the form body and a JSON object body, later sources winning.
func readPayload(request *http.Request) (Params, error) {
	payload := Params{}
	mergeValues(payload, request.URL.Query())

	if isJson(request) {
		if err := mergeJsonBody(payload, request); err != nil {
			return payload, err
		}
		return payload, nil
	}

	if err := request.ParseForm(); err != nil {
		return payload, errors.Wrap(err, "could not parse request form")
	}
	mergeValues(payload, request.PostForm)
	return payload, nil
}

// readRestfulPayload reads the data of a RESTful call: the query for read verbs, the form for post and the raw
// url-encoded body for put, patch and delete.
func readRestfulPayload(request *http.Request, verb string) (Params, error) {
	payload := Params{}

	switch verb {
	case "post":
		if isJson(request) {
			return payload, mergeJsonBody(payload, request)
		}
		if err := request.ParseForm(); err != nil {
			return payload, errors.Wrap(err, "could not parse request form")
		}
		mergeValues(payload, request.PostForm)
	case "put", "patch", "delete":
		if isJson(request) {
			return payload, mergeJsonBody(payload, request)
		}
		body, err := readBody(request)
		if err != nil {
			return payload, err
		}
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return payload, errors.Wrap(err, "could not parse url-encoded request body")
		}
		mergeValues(payload, values)
	default:
		mergeValues(payload, request.URL.Query())
	}
	return payload, nil
}

func mergeValues(payload Params, values url.Values) {
	for key, vals := range values {
		switch len(vals) {
		case 0:
			payload[key] = ""
		case 1:
			payload[key] = vals[0]
		default:
			payload[key] = append([]string(nil), vals...)
		}
	}
}

func isJson(request *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(request.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func readBody(request *http.Request) ([]byte, error) {
	if request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(request.Body, MaxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "could not read request body")
	}
	return body, nil
}

// mergeJsonBody merges a JSON object body into payload. The batch params value is kept as its raw text so the order
// of its entries survives decoding.
func mergeJsonBody(payload Params, request *http.Request) error {
	body, err := readBody(request)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(body, fields); err != nil {
		return errors.Wrap(err, "request body must be a JSON object")
	}

	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		raw := bytes.TrimSpace(pair.Value)
		if pair.Key == BatchParamsParam && len(raw) > 0 && raw[0] == '{' {
			payload[pair.Key] = string(raw)
			continue
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return errors.Wrapf(err, "could not decode body field [%s]", pair.Key)
		}
		payload[pair.Key] = value
	}
	return nil
}

// decodeBatch decodes the params value of a multi or long-polling request. The second return is false when params
// is not a JSON object.
func decodeBatch(raw interface{}) ([]batchEntry, bool) {
	text, ok := raw.(string)
	if !ok {
		return nil, false
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal([]byte(text), fields); err != nil {
		return nil, false
	}

	entries := make([]batchEntry, 0, fields.Len())
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		entry := batchEntry{key: pair.Key}
		var data map[string]interface{}
		if err := json.Unmarshal(pair.Value, &data); err == nil && data != nil {
			entry.data = data
		}
		entries = append(entries, entry)
	}
	return entries, true
}
