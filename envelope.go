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
	"fmt"
	"net/http"
	"reflect"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var statusLabels = map[int]string{
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusInternalServerError: "Internal Server Error",
}

// couldNotProcess is the data of results for failed handler invocations
const couldNotProcess = "could not process the request"

// ResultInfo is the result shape used when a WebService is configured with return_info.
type ResultInfo struct {
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
	Error  string      `json:"error,omitempty"`
}

// StatusLabel returns the error label for a status code, "" for successful codes.
func StatusLabel(status int) string {
	if status < http.StatusBadRequest {
		return ""
	}
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return http.StatusText(status)
}

// BuildResult maps data and a status code to the value sent to the client. With returnInfo a ResultInfo is always
// returned; otherwise failures become their error string and successes their raw data.
func BuildResult(data interface{}, status int, returnInfo bool) interface{} {
	label := StatusLabel(status)

	errorText := ""
	if label != "" {
		errorText = label
		if !isEmpty(data) {
			errorText = label + " - " + describe(data)
		}
	}

	if returnInfo {
		if errorText != "" {
			return &ResultInfo{Status: status, Data: nil, Error: errorText}
		}
		return &ResultInfo{Status: status, Data: data}
	}

	if errorText != "" {
		return errorText
	}
	return data
}

func describe(data interface{}) string {
	switch val := data.(type) {
	case string:
		return val
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	if encoded, err := json.Marshal(data); err == nil {
		return string(encoded)
	}
	return fmt.Sprint(data)
}

func isEmpty(data interface{}) bool {
	if data == nil {
		return true
	}
	val := reflect.ValueOf(data)
	switch val.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return val.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return val.IsNil()
	}
	return val.IsZero()
}

// hasUpdate reports whether data is a non-empty collection, the signal that ends a long-polling request.
func hasUpdate(data interface{}) bool {
	if data == nil {
		return false
	}
	val := reflect.ValueOf(data)
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return false
		}
		val = val.Elem()
	}
	switch val.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return val.Len() > 0
	}
	return false
}

// Results holds the results of a batch keyed by the caller supplied request key, in request order.
type Results struct {
	entries *orderedmap.OrderedMap[string, interface{}]
}

// NewResults creates an empty Results
func NewResults() *Results {
	return &Results{entries: orderedmap.New[string, interface{}]()}
}

// Set stores the result for key.
func (results *Results) Set(key string, result interface{}) {
	results.entries.Set(key, result)
}

// Get returns the result stored for key.
func (results *Results) Get(key string) (interface{}, bool) {
	if results == nil {
		return nil, false
	}
	return results.entries.Get(key)
}

// Keys returns the request keys in request order.
func (results *Results) Keys() []string {
	if results == nil {
		return nil
	}
	keys := make([]string, 0, results.entries.Len())
	for pair := results.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of stored results.
func (results *Results) Len() int {
	if results == nil {
		return 0
	}
	return results.entries.Len()
}

func (results *Results) MarshalJSON() ([]byte, error) {
	return results.entries.MarshalJSON()
}
