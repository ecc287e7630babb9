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
	"strings"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// Application is the http.Handler serving one Manifest under a base path. For every request it resolves the route,
// creates a RequestContext and hands the request to the Controller named by the first frame.
type Application struct {
	name      string
	manifest  *Manifest
	registry  Registry
	basePath  string
	baseUrl   string
	views     ViewFactory
	metrics   *Metrics
	isDefault bool
}

var _ DefaultApiHandler = &Application{}

// ApplicationOption configures an Application
type ApplicationOption func(app *Application)

// WithName sets the name used in logs and demux errors, defaults to the base path.
func WithName(name string) ApplicationOption {
	return func(app *Application) {
		app.name = name
	}
}

// WithBasePath sets the path prefix removed before resolving segments.
func WithBasePath(basePath string) ApplicationOption {
	return func(app *Application) {
		app.basePath = "/" + strings.Trim(basePath, "/")
	}
}

// WithBaseUrl sets the prefix of RoutingFrame.UrlPath.
func WithBaseUrl(baseUrl string) ApplicationOption {
	return func(app *Application) {
		app.baseUrl = baseUrl
	}
}

// WithViewFactory replaces the default DataView.
func WithViewFactory(views ViewFactory) ApplicationOption {
	return func(app *Application) {
		app.views = views
	}
}

// WithMetrics records dispatch metrics.
func WithMetrics(metrics *Metrics) ApplicationOption {
	return func(app *Application) {
		app.metrics = metrics
	}
}

// AsDefault makes the Application the fallback of a demux when no base path matches.
func AsDefault(isDefault bool) ApplicationOption {
	return func(app *Application) {
		app.isDefault = isDefault
	}
}

// NewApplication creates an Application. The manifest is validated against the registry so unknown handler ids are
// reported here instead of during a request.
func NewApplication(manifest *Manifest, registry Registry, opts ...ApplicationOption) (*Application, error) {
	if manifest == nil {
		return nil, errors.New("a manifest is required")
	}

	app := &Application{
		manifest: manifest,
		registry: registry,
		basePath: "/",
		views:    NewDataView,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.name == "" {
		app.name = app.basePath
	}

	if err := manifest.Validate(registry); err != nil {
		return nil, errors.Wrapf(err, "application [%s] has an invalid manifest", app.name)
	}

	return app, nil
}

// Binding returns the name of the application.
func (app *Application) Binding() string {
	return app.name
}

// RootPath returns the base path.
func (app *Application) RootPath() string {
	return app.basePath
}

// IsHandler reports whether the request path is under the base path.
func (app *Application) IsHandler(request *http.Request) bool {
	if app.basePath == "/" {
		return true
	}
	return request.URL.Path == app.basePath || strings.HasPrefix(request.URL.Path, app.basePath+"/")
}

// IsDefault reports whether the application is the demux fallback.
func (app *Application) IsDefault() bool {
	return app.isDefault
}

// Manifest returns the served manifest.
func (app *Application) Manifest() *Manifest {
	return app.manifest
}

func (app *Application) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	rc := newRequestContext(writer, request, app)
	writer.Header().Set(RequestIdHeader, rc.Id)

	route, err := app.manifest.Resolve(ExtractSegments(request.URL.Path, app.basePath), app.registry, app.baseUrl)
	if err != nil {
		rc.Logger().WithError(err).Error("could not resolve route")
		rc.Render(http.StatusInternalServerError, StatusLabel(http.StatusInternalServerError))
		return
	}
	rc.Route = route
	rc.Cursor = NewCursor(route.Frames)

	handler, frame, err := rc.NextHandler()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRouteNotFound) {
			status = http.StatusNotFound
		}
		rc.Logger().WithError(err).Error("could not create entry handler")
		rc.Render(status, StatusLabel(status))
		return
	}

	controller, ok := handler.(Controller)
	if !ok {
		pfxlog.Logger().WithField("requestId", rc.Id).Errorf("class [%s] created a %T which is not a controller", frame.HandlerId, handler)
		rc.Render(http.StatusInternalServerError, StatusLabel(http.StatusInternalServerError))
		return
	}

	controller.Handle(rc)
}

func (app *Application) String() string {
	return fmt.Sprintf("[Application: %s, BasePath: %s]", app.name, app.basePath)
}
