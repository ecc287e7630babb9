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
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ContextKey string

const (
	RequestContextKey = ContextKey("xdispatch.RequestContext.ContextKey")
	ServerContextKey  = ContextKey("xdispatch.Server.ContextKey")

	RequestIdHeader = "X-Request-Id"
)

// Controller is a handler that takes over a request. The entry frame of every route must name a Controller.
type Controller interface {
	Handle(rc *RequestContext)
}

// ControllerFunc adapts a function to a Controller.
type ControllerFunc func(rc *RequestContext)

func (f ControllerFunc) Handle(rc *RequestContext) {
	f(rc)
}

// RequestContext carries everything a single request needs while it travels through nested controllers: the
// resolved Route, the Cursor over its frames and the collaborators of the Application. One is created per request and
// never shared.
type RequestContext struct {
	Id        string
	StartedAt time.Time
	Writer    http.ResponseWriter
	Request   *http.Request
	Route     *Route
	Cursor    *Cursor

	registry Registry
	views    ViewFactory
	metrics  *Metrics
	started  bool

	instantiating *ManifestNode
}

func newRequestContext(writer http.ResponseWriter, request *http.Request, app *Application) *RequestContext {
	rc := &RequestContext{
		Id:        uuid.NewString(),
		StartedAt: time.Now(),
		Writer:    writer,
		Request:   request,
		Cursor:    NewCursor(nil),
		registry:  app.registry,
		views:     app.views,
		metrics:   app.metrics,
	}
	rc.Request = request.WithContext(context.WithValue(request.Context(), RequestContextKey, rc))
	return rc
}

// RequestContextFromContext retrieves the *RequestContext stored on a request context by Application, nil if absent.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if val := ctx.Value(RequestContextKey); val != nil {
		if rc, ok := val.(*RequestContext); ok {
			return rc
		}
	}
	return nil
}

// Context returns the context of the underlying http.Request. It is done when the client goes away.
func (rc *RequestContext) Context() context.Context {
	return rc.Request.Context()
}

// Logger returns a logger annotated with the request id and the current frame.
func (rc *RequestContext) Logger() *logrus.Entry {
	entry := pfxlog.Logger().WithField("requestId", rc.Id)
	if serverContext := ServerContextFromRequestContext(rc.Context()); serverContext != nil {
		entry = entry.WithField("server", serverContext.ServerConfig.Name)
	}
	if frame := rc.Cursor.Current(); frame != nil {
		entry = entry.WithField("route", frame.RoutePath).WithField("class", frame.HandlerId)
	}
	return entry
}

// Param returns a route segment, see Route.Param.
func (rc *RequestContext) Param(index int, scope ParamScope) (string, bool) {
	if rc.Route == nil {
		return "", false
	}
	return rc.Route.Param(index, scope)
}

// Params returns route segments, see Route.Params.
func (rc *RequestContext) Params(scope ParamScope) []string {
	if rc.Route == nil {
		return nil
	}
	return rc.Route.Params(scope)
}

// NextHandler advances the cursor and instantiates the handler of the frame it lands on. ErrRouteNotFound is
// returned when there is no further frame or its class has no factory.
func (rc *RequestContext) NextHandler() (interface{}, *RoutingFrame, error) {
	frame := rc.Cursor.Next()
	if frame == nil {
		return nil, nil, errors.Wrap(ErrRouteNotFound, "no further frame to dispatch to")
	}

	handler, err := rc.Instantiate(frame.HandlerId)
	if err != nil {
		return nil, frame, err
	}
	return handler, frame, nil
}

// Instantiate creates a handler by handler id without moving the cursor.
func (rc *RequestContext) Instantiate(handlerId string) (interface{}, error) {
	if rc.registry == nil {
		return nil, errors.Wrapf(ErrRouteNotFound, "no registry to resolve class [%s]", handlerId)
	}

	factory := rc.registry.Get(handlerId)
	if factory == nil {
		return nil, errors.Wrapf(ErrRouteNotFound, "class [%s] is not registered", handlerId)
	}

	handler, err := factory.New(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create handler for class [%s]", handlerId)
	}
	if handler == nil {
		return nil, errors.Wrapf(ErrRouteNotFound, "factory for class [%s] returned no handler", handlerId)
	}
	return handler, nil
}

// instantiateNode creates the handler of a manifest node that is not on the route, such as the target of a batch entry.
// While it runs, RequestContext.Node reports node.
func (rc *RequestContext) instantiateNode(node *ManifestNode) (interface{}, error) {
	previous := rc.instantiating
	rc.instantiating = node
	defer func() {
		rc.instantiating = previous
	}()

	return rc.Instantiate(node.HandlerId)
}

// Node returns the manifest node of the handler being created: the batch target during instantiateNode, the node of
// the current frame otherwise.
func (rc *RequestContext) Node() *ManifestNode {
	if rc.instantiating != nil {
		return rc.instantiating
	}
	if frame := rc.Cursor.Current(); frame != nil {
		return frame.Node
	}
	return nil
}

// View returns a fresh View from the application's ViewFactory.
func (rc *RequestContext) View() View {
	if rc.views == nil {
		return NewDataView()
	}
	return rc.views()
}

// Render resets a View with data and renders it with the given status.
func (rc *RequestContext) Render(status int, data interface{}) {
	view := rc.View()
	view.Reset(data)
	if err := view.Render(rc.Writer, status); err != nil {
		rc.Logger().WithError(err).Error("could not render response")
	}
}

// begin latches the request as dispatched. Only the first caller gets true.
func (rc *RequestContext) begin() bool {
	if rc.started {
		return false
	}
	rc.started = true
	return true
}
