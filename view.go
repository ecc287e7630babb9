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

	"github.com/goccy/go-json"
)

// View renders the result of a request. Reset replaces the data to render, Render writes status and body.
type View interface {
	Reset(data interface{})
	Render(writer http.ResponseWriter, status int) error
}

// ViewFactory creates a View for a single response.
type ViewFactory func() View

// DataView renders maps, slices, structs and anything implementing json.Marshaler as JSON and every other value as
// plain text. nil renders an empty body.
type DataView struct {
	data interface{}
}

var _ View = &DataView{}

// NewDataView creates an empty DataView
func NewDataView() View {
	return &DataView{}
}

func (view *DataView) Reset(data interface{}) {
	view.data = data
}

func (view *DataView) Render(writer http.ResponseWriter, status int) error {
	var body []byte
	contentType := "text/plain; charset=utf-8"

	switch val := view.data.(type) {
	case nil:
	case string:
		body = []byte(val)
	case []byte:
		body = val
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		body = []byte(fmt.Sprint(val))
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			writer.Header().Set("Content-Type", contentType)
			writer.WriteHeader(http.StatusInternalServerError)
			_, _ = writer.Write([]byte(StatusLabel(http.StatusInternalServerError)))
			return fmt.Errorf("could not encode response of type %T: %v", val, err)
		}
		body = encoded
		contentType = "application/json"
	}

	writer.Header().Set("Content-Type", contentType)
	writer.WriteHeader(status)
	_, err := writer.Write(body)
	return err
}
