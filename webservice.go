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
	"net/http"
	"strings"
	"time"

	"github.com/openziti/foundation/v2/debugz"
	"github.com/pkg/errors"
)

const (
	DefaultMethodParam = "method"
	MultiRequestParam  = "multi_request"
	LongPollingParam   = "long_polling"
	BatchParamsParam   = "params"
)

const (
	modeRestful     = "restful"
	modeMulti       = "multi_request"
	modeLongPolling = "long_polling"
	modeCommon      = "common"
	modeUnroutable  = "unroutable"
)

// webServiceMethods are the lower camel case names of WebService's own methods. Api's cannot expose them.
var webServiceMethods = map[string]struct{}{
	"handle":  {},
	"config":  {},
	"methods": {},
	"node":    {},
	"api":     {},
}

// DispatchConfig controls how a WebService interprets requests.
type DispatchConfig struct {
	// MethodParam is the payload key naming the method of common requests and of batch entries.
	MethodParam string
	// Controller makes the WebService a router for child Api's instead of serving its own methods.
	Controller bool
	// InheritedAllowed permits methods a MethodSet inherited from a parent set.
	InheritedAllowed bool
	// Restful maps the HTTP verb to the method name.
	Restful bool
	// ReturnInfo wraps every result in a ResultInfo.
	ReturnInfo bool
	// LongPolling permits long-polling requests.
	LongPolling bool
}

// DefaultDispatchConfig returns the configuration used when neither manifest nor constructor set anything.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MethodParam: DefaultMethodParam,
	}
}

func (config *DispatchConfig) applyNode(node *ManifestNode) {
	if node == nil {
		return
	}
	if node.MethodParam != "" {
		config.MethodParam = node.MethodParam
	}
	if node.Controller != nil {
		config.Controller = *node.Controller
	}
	if node.Inherited != nil {
		config.InheritedAllowed = *node.Inherited
	}
	if node.Restful != nil {
		config.Restful = *node.Restful
	}
	if node.ReturnInfo != nil {
		config.ReturnInfo = *node.ReturnInfo
	}
	if node.LongPolling != nil {
		config.LongPolling = *node.LongPolling
	}
}

// DispatchOption overrides a DispatchConfig value. Options are applied after the manifest values and win over them.
type DispatchOption func(config *DispatchConfig)

func WithMethodParam(name string) DispatchOption {
	return func(config *DispatchConfig) {
		if name != "" {
			config.MethodParam = name
		}
	}
}

func WithController(controller bool) DispatchOption {
	return func(config *DispatchConfig) {
		config.Controller = controller
	}
}

func WithInheritedMethods(allowed bool) DispatchOption {
	return func(config *DispatchConfig) {
		config.InheritedAllowed = allowed
	}
}

func WithRestful(restful bool) DispatchOption {
	return func(config *DispatchConfig) {
		config.Restful = restful
	}
}

func WithReturnInfo(returnInfo bool) DispatchOption {
	return func(config *DispatchConfig) {
		config.ReturnInfo = returnInfo
	}
}

func WithLongPolling(enabled bool) DispatchOption {
	return func(config *DispatchConfig) {
		config.LongPolling = enabled
	}
}

// WebService dispatches a request to an Api method. In leaf mode the Api is its own; in controller mode it is the
// handler of the next frame (single requests) or of a child of its manifest node (batches).
type WebService struct {
	config DispatchConfig
	node   *ManifestNode
	api    Api
	rc     *RequestContext
}

var _ Controller = &WebService{}
var _ Api = &WebService{}

// NewWebService creates a WebService for the manifest node rc is creating a handler for, see RequestContext.Node.
// The node provides the defaults of the DispatchConfig, opts override them. api may be nil for controllers.
func NewWebService(rc *RequestContext, api Api, opts ...DispatchOption) *WebService {
	config := DefaultDispatchConfig()

	node := rc.Node()
	config.applyNode(node)

	for _, opt := range opts {
		opt(&config)
	}

	return &WebService{
		config: config,
		node:   node,
		api:    api,
		rc:     rc,
	}
}

// NewWebServiceFactory creates a HandlerFactory producing WebService's. newApi creates the Api served in leaf mode
// and may be nil for pure controllers.
func NewWebServiceFactory(handlerId string, newApi func(rc *RequestContext) (Api, error), opts ...DispatchOption) HandlerFactory {
	return NewHandlerFactory(handlerId, func(rc *RequestContext) (interface{}, error) {
		var api Api
		if newApi != nil {
			var err error
			if api, err = newApi(rc); err != nil {
				return nil, err
			}
		}
		return NewWebService(rc, api, opts...), nil
	})
}

// Config returns the effective DispatchConfig.
func (ws *WebService) Config() DispatchConfig {
	return ws.config
}

// Node returns the manifest node the WebService was created for.
func (ws *WebService) Node() *ManifestNode {
	return ws.node
}

// Api returns the Api served in leaf mode.
func (ws *WebService) Api() Api {
	return ws.api
}

// Methods exposes the methods of the leaf Api so a WebService can itself be the child of a controller.
func (ws *WebService) Methods() *MethodSet {
	if ws.api == nil {
		return NewMethodSet()
	}
	return ws.api.Methods()
}

// Handle classifies the request and runs it. Only the first WebService of a request dispatches; later ones return
// immediately.
func (ws *WebService) Handle(rc *RequestContext) {
	if !rc.begin() {
		return
	}
	ws.rc = rc

	mode, status := ws.dispatch()
	rc.metrics.observeDispatch(mode, status, time.Since(rc.StartedAt))
}

func (ws *WebService) dispatch() (string, int) {
	rc := ws.rc

	if ws.config.Restful {
		return modeRestful, ws.serveRestful()
	}

	payload, err := readPayload(rc.Request)
	if err != nil {
		rc.Logger().WithError(err).Warn("could not read request payload")
	}

	// an empty multi_request or long_polling value does not switch the mode
	if payload.Truthy(MultiRequestParam) {
		if entries, ok := decodeBatch(payload[BatchParamsParam]); ok {
			rc.Render(http.StatusOK, ws.runBatch(entries).results)
			return modeMulti, http.StatusOK
		}
	}

	if payload.Truthy(LongPollingParam) {
		if entries, ok := decodeBatch(payload[BatchParamsParam]); ok {
			if !ws.config.LongPolling {
				return modeLongPolling, ws.respond(http.StatusForbidden, "long polling is not enabled")
			}
			rc.Render(http.StatusOK, ws.longPoll(entries))
			return modeLongPolling, http.StatusOK
		}
	}

	if payload.Has(ws.config.MethodParam) {
		return modeCommon, ws.serveCommon(payload)
	}

	return modeUnroutable, ws.respond(http.StatusMethodNotAllowed, nil)
}

func (ws *WebService) serveCommon(payload Params) int {
	api, controller, status := ws.frameApi()
	if status != http.StatusOK {
		return ws.respond(status, nil)
	}

	method, ok := api.Methods().Lookup(ActionToMethod(payload.String(ws.config.MethodParam)), ws.inheritedAllowed(controller))
	if !ok {
		return ws.respond(http.StatusMethodNotAllowed, nil)
	}

	data, status := ws.invoke(method, payload, nil, controller)
	return ws.respond(status, data)
}

func (ws *WebService) serveRestful() int {
	verb := strings.ToLower(ws.rc.Request.Method)
	if _, ok := restfulVerbs[verb]; !ok {
		return ws.respond(http.StatusMethodNotAllowed, nil)
	}

	payload, err := readRestfulPayload(ws.rc.Request, verb)
	if err != nil {
		ws.rc.Logger().WithError(err).Warn("could not read restful payload")
	}

	api, controller, status := ws.frameApi()
	if status != http.StatusOK {
		return ws.respond(status, nil)
	}

	method, ok := api.Methods().Lookup(verb, ws.inheritedAllowed(controller))
	if !ok {
		return ws.respond(http.StatusMethodNotAllowed, nil)
	}

	data, status := ws.invoke(method, payload, nil, controller)
	return ws.respond(status, data)
}

// frameApi selects the Api of a single request and the controller that selected it: the WebService itself and no
// controller in leaf mode. In controller mode the frames are followed through nested controllers down to the first
// handler that is not one.
func (ws *WebService) frameApi() (Api, *WebService, int) {
	if !ws.config.Controller {
		return ws, nil, http.StatusOK
	}

	controller := ws
	for {
		handler, frame, err := ws.rc.NextHandler()
		if err != nil {
			return nil, nil, ws.statusFor(err, frame)
		}

		if nested, ok := handler.(*WebService); ok && nested.config.Controller {
			controller = nested
			continue
		}

		api, status := ws.asApi(handler, frame.HandlerId)
		return api, controller, status
	}
}

// entryApi selects the Api of a batch entry addressed as map_name/method_name. Nested controllers add a level each,
// e.g. v1/users/method_name. It returns the method name left after the map names.
func (ws *WebService) entryApi(address string) (Api, *WebService, string, int) {
	if !ws.config.Controller {
		_, methodName := splitAddress(address)
		return ws, nil, methodName, http.StatusOK
	}

	controller := ws
	for {
		mapName, rest := splitAddress(address)

		child := controller.node.Child(mapName)
		if child == nil {
			return nil, nil, "", http.StatusNotFound
		}

		handler, err := ws.rc.instantiateNode(child)
		if err != nil {
			return nil, nil, "", ws.statusFor(err, nil)
		}

		if nested, ok := handler.(*WebService); ok && nested.config.Controller {
			controller = nested
			address = rest
			continue
		}

		api, status := ws.asApi(handler, child.HandlerId)
		return api, controller, rest, status
	}
}

func (ws *WebService) inheritedAllowed(controller *WebService) bool {
	if controller != nil {
		return controller.config.InheritedAllowed
	}
	return ws.config.InheritedAllowed
}

func (ws *WebService) asApi(handler interface{}, handlerId string) (Api, int) {
	if api, ok := handler.(Api); ok {
		return api, http.StatusOK
	}
	ws.rc.Logger().WithError(errors.Wrapf(ErrNotAnApi, "class [%s] created a %T", handlerId, handler)).Warn("cannot dispatch to handler")
	return nil, http.StatusMethodNotAllowed
}

func (ws *WebService) statusFor(err error, frame *RoutingFrame) int {
	if errors.Is(err, ErrRouteNotFound) {
		return http.StatusNotFound
	}
	entry := ws.rc.Logger().WithError(err)
	if frame != nil {
		entry = entry.WithField("target", frame.HandlerId)
	}
	entry.Error("could not create api handler")
	return http.StatusInternalServerError
}

// invoke calls method, converting errors and panics into a logged 500.
func (ws *WebService) invoke(method Method, data Params, prior *Results, controller *WebService) (result interface{}, status int) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			ws.rc.Logger().Errorf("panic caught during api method invocation: %v\n%v", panicVal, debugz.GenerateLocalStack())
			result, status = couldNotProcess, http.StatusInternalServerError
		}
	}()

	value, err := method(data, prior, controller)
	if err != nil {
		ws.rc.Logger().WithError(err).Error("api method invocation failed")
		return couldNotProcess, http.StatusInternalServerError
	}
	return value, http.StatusOK
}

// respond renders the result of a single request and applies status to the response.
func (ws *WebService) respond(status int, data interface{}) int {
	ws.rc.Render(status, BuildResult(data, status, ws.config.ReturnInfo))
	return status
}

type entryOutcome struct {
	status int
	data   interface{}
}

type batchRun struct {
	results  *Results
	outcomes []entryOutcome
}

// runBatch runs every entry in order. Entries are isolated: each one gets its own status and a failure never stops
// the entries after it. Later entries see the results of earlier ones.
func (ws *WebService) runBatch(entries []batchEntry) *batchRun {
	run := &batchRun{results: NewResults()}

	for _, entry := range entries {
		status, data := ws.runEntry(entry, run.results)
		run.outcomes = append(run.outcomes, entryOutcome{status: status, data: data})
		run.results.Set(entry.key, BuildResult(data, status, ws.config.ReturnInfo))
	}

	return run
}

func (ws *WebService) runEntry(entry batchEntry, prior *Results) (int, interface{}) {
	if entry.data == nil {
		return http.StatusMethodNotAllowed, nil
	}

	api, controller, methodName, status := ws.entryApi(entry.data.String(ws.config.MethodParam))
	if status != http.StatusOK {
		return status, nil
	}

	method, ok := api.Methods().Lookup(ActionToMethod(methodName), ws.inheritedAllowed(controller))
	if !ok {
		return http.StatusMethodNotAllowed, nil
	}

	data, status := ws.invoke(method, entry.data, prior, controller)
	return status, data
}

// splitAddress splits "map_name/method_name". Without a slash the whole value is the method name.
func splitAddress(address string) (string, string) {
	address = strings.Trim(address, "/")
	if idx := strings.Index(address, "/"); idx >= 0 {
		return address[:idx], address[idx+1:]
	}
	return "", address
}
