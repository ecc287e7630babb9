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
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/michaelquigley/pfxlog"
)

// ApiHandler is a http.Handler that can be selected by a demux. Application is the implementation used by Server.
type ApiHandler interface {
	http.Handler
	Binding() string
	RootPath() string
	IsHandler(request *http.Request) bool
}

// DefaultApiHandler is an ApiHandler that may declare itself the fallback of a demux.
type DefaultApiHandler interface {
	ApiHandler
	IsDefault() bool
}

const HandlerContextKey = ContextKey("xdispatch.ApiHandler.ContextKey")

// HandlerFromRequestContext retrieves the ApiHandler a demux selected for the request, nil if none.
func HandlerFromRequestContext(ctx context.Context) ApiHandler {
	if val := ctx.Value(HandlerContextKey); val != nil {
		if handler, ok := val.(ApiHandler); ok {
			return handler
		}
	}
	return nil
}

// DemuxFactory builds a http.Handler that routes requests to one of several ApiHandler's.
type DemuxFactory interface {
	Build(handlers []ApiHandler) (http.Handler, error)
}

// PathPrefixDemuxFactory routes requests to the ApiHandler with the longest root path that contains the request path.
// Requests matching no root path go to the default handler. NotFound, when set, replaces the default empty 404 for
// requests that are still unmatched.
type PathPrefixDemuxFactory struct {
	NotFound http.Handler
}

var _ DemuxFactory = &PathPrefixDemuxFactory{}

// Build performs ApiHandler selection based on URL path prefixes
func (factory *PathPrefixDemuxFactory) Build(handlers []ApiHandler) (http.Handler, error) {
	defaultApi, err := getDefault(handlers)
	if err != nil {
		return nil, err
	}

	byRoot := map[string]ApiHandler{}
	for _, handler := range handlers {
		if existing, ok := byRoot[handler.RootPath()]; ok {
			return nil, fmt.Errorf("duplicate root path [%s] detected for both bindings [%s] and [%s]", handler.RootPath(), handler.Binding(), existing.Binding())
		}
		byRoot[handler.RootPath()] = handler
	}

	ordered := append([]ApiHandler(nil), handlers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].RootPath()) > len(ordered[j].RootPath())
	})

	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		selected := defaultApi
		for _, handler := range ordered {
			if handler.IsHandler(request) {
				selected = handler
				break
			}
		}

		if selected != nil {
			ctx := context.WithValue(request.Context(), HandlerContextKey, selected)
			selected.ServeHTTP(writer, request.WithContext(ctx))
			return
		}

		if factory.NotFound != nil {
			factory.NotFound.ServeHTTP(writer, request)
			return
		}

		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte{})
	}), nil
}

// getDefault determines which of the handlers receives unmatched requests. At most one handler may declare itself
// the default. If none does, the last handler is used.
func getDefault(handlers []ApiHandler) (ApiHandler, error) {
	var defaults []ApiHandler

	if len(handlers) == 0 {
		return nil, errors.New("no handlers provided")
	}

	for _, handler := range handlers {
		if curHandler, ok := handler.(DefaultApiHandler); ok && curHandler.IsDefault() {
			defaults = append(defaults, curHandler)
		}
	}

	if len(defaults) == 0 {
		lastHandler := handlers[len(handlers)-1]
		pfxlog.Logger().Warnf("no default handlers were found, using the last handler [Binding: %s, Type: %T] as the default", lastHandler.Binding(), lastHandler)
		return lastHandler, nil
	}

	if len(defaults) > 1 {
		var names []string
		for _, handler := range defaults {
			names = append(names, fmt.Sprintf("[Binding: %s, Type: %T]", handler.Binding(), handler))
		}
		return nil, errors.New("too many default handlers found, ensure that only one handler is marked as the default: " + strings.Join(names, ","))
	}

	return defaults[0], nil
}
