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
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const serviceManifest = `{
	"api": {"class": "ApiController", "main": true, "controller": true, "long_polling": true, "sub": {
		"users": {"class": "UsersApi", "main": true},
		"broken": {"class": "BrokenApi"},
		"plain": {"class": "PlainHandler"},
		"v1": {"class": "NestedController", "controller": true, "sub": {
			"users": {"class": "UsersApi", "main": true},
			"rest": {"class": "RestChild"}
		}}
	}},
	"leaf": {"class": "UsersLeaf", "inherited": true},
	"rest": {"class": "RestApi", "restful": true},
	"info": {"class": "InfoApi", "return_info": true, "method_param": "action"}
}`

type usersApi struct {
	polls *atomic.Int32
}

func (api *usersApi) Methods() *MethodSet {
	base := NewMethodSet().Add("ping", func(Params, *Results, *WebService) (interface{}, error) {
		return "pong", nil
	})

	return NewMethodSet().
		Add("listUsers", func(Params, *Results, *WebService) (interface{}, error) {
			return []string{"ann", "bob"}, nil
		}).
		Add("echo", func(data Params, _ *Results, _ *WebService) (interface{}, error) {
			return data.String("value"), nil
		}).
		Add("countPrior", func(_ Params, prior *Results, _ *WebService) (interface{}, error) {
			return prior.Len(), nil
		}).
		Add("isControlled", func(_ Params, _ *Results, controller *WebService) (interface{}, error) {
			return controller != nil, nil
		}).
		Add("controllerNode", func(_ Params, _ *Results, controller *WebService) (interface{}, error) {
			if controller == nil {
				return "", nil
			}
			return controller.Node().Name, nil
		}).
		Add("fail", func(Params, *Results, *WebService) (interface{}, error) {
			return nil, errors.New("storage unavailable")
		}).
		Add("explode", func(Params, *Results, *WebService) (interface{}, error) {
			panic("boom")
		}).
		Add("poll", func(Params, *Results, *WebService) (interface{}, error) {
			if api.polls.Add(1) >= 3 {
				return []string{"update"}, nil
			}
			return []string{}, nil
		}).
		Add("idle", func(Params, *Results, *WebService) (interface{}, error) {
			return []string{}, nil
		}).
		Add("__hidden", func(Params, *Results, *WebService) (interface{}, error) {
			return "hidden", nil
		}).
		Inherit(base)
}

type restApi struct{}

func (restApi) Methods() *MethodSet {
	return NewMethodSet().
		Add("get", func(data Params, _ *Results, _ *WebService) (interface{}, error) {
			return "got " + data.String("id"), nil
		}).
		Add("post", func(data Params, _ *Results, _ *WebService) (interface{}, error) {
			return "created " + data.String("name"), nil
		})
}

type serviceFixture struct {
	app   *Application
	polls *atomic.Int32
}

func newServiceFixture(t *testing.T, opts ...ApplicationOption) *serviceFixture {
	t.Helper()
	req := require.New(t)

	polls := &atomic.Int32{}
	newUsers := func(*RequestContext) (Api, error) {
		return &usersApi{polls: polls}, nil
	}

	registry := NewRegistryMap()
	req.NoError(registry.Add(NewWebServiceFactory("ApiController", nil)))
	req.NoError(registry.Add(NewHandlerFactory("UsersApi", func(rc *RequestContext) (interface{}, error) {
		return newUsers(rc)
	})))
	req.NoError(registry.Add(NewHandlerFactory("BrokenApi", func(*RequestContext) (interface{}, error) {
		return nil, errors.New("no database")
	})))
	req.NoError(registry.Add(NewHandlerFactory("PlainHandler", func(*RequestContext) (interface{}, error) {
		return struct{}{}, nil
	})))
	req.NoError(registry.Add(NewWebServiceFactory("NestedController", nil)))
	req.NoError(registry.Add(NewHandlerFactory("RestChild", func(*RequestContext) (interface{}, error) {
		return restApi{}, nil
	})))
	req.NoError(registry.Add(NewWebServiceFactory("UsersLeaf", newUsers)))
	req.NoError(registry.Add(NewWebServiceFactory("RestApi", func(*RequestContext) (Api, error) {
		return restApi{}, nil
	})))
	req.NoError(registry.Add(NewWebServiceFactory("InfoApi", newUsers)))

	app, err := NewApplication(mustParseManifest(t, serviceManifest), registry, opts...)
	req.NoError(err)

	return &serviceFixture{app: app, polls: polls}
}

func (fixture *serviceFixture) get(path string, values url.Values) *httptest.ResponseRecorder {
	target := path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	return fixture.serve(httptest.NewRequest(http.MethodGet, target, nil))
}

func (fixture *serviceFixture) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	fixture.app.ServeHTTP(recorder, request)
	return recorder
}

func TestWebService_Common(t *testing.T) {
	fixture := newServiceFixture(t)

	t.Run("a controller dispatches to the api of the next frame", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api/users", url.Values{"method": {"list_users"}})

		req.Equal(http.StatusOK, resp.Code)
		req.JSONEq(`["ann","bob"]`, resp.Body.String())
		req.NotEmpty(resp.Header().Get(RequestIdHeader))
	})

	t.Run("missing segments resolve to the main entries", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/", url.Values{"method": {"list_users"}})

		req.Equal(http.StatusOK, resp.Code)
		req.JSONEq(`["ann","bob"]`, resp.Body.String())
	})

	t.Run("methods receive the controller in controller mode", func(t *testing.T) {
		resp := fixture.get("/api/users", url.Values{"method": {"is_controlled"}})
		require.Equal(t, "true", resp.Body.String())
	})

	t.Run("a leaf serves its own api", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/leaf", url.Values{"method": {"echo"}, "value": {"hello"}})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal("hello", resp.Body.String())

		resp = fixture.get("/leaf", url.Values{"method": {"is_controlled"}})
		req.Equal("false", resp.Body.String())
	})

	t.Run("inherited methods follow the node setting", func(t *testing.T) {
		req := require.New(t)

		resp := fixture.get("/leaf", url.Values{"method": {"ping"}})
		req.Equal(http.StatusOK, resp.Code)
		req.Equal("pong", resp.Body.String())

		resp = fixture.get("/api/users", url.Values{"method": {"ping"}})
		req.Equal(http.StatusMethodNotAllowed, resp.Code)
	})

	t.Run("hidden and reserved names are not invocable", func(t *testing.T) {
		req := require.New(t)
		for _, method := range []string{"__hidden", "handle", "methods", "does_not_exist"} {
			resp := fixture.get("/leaf", url.Values{"method": {method}})
			req.Equal(http.StatusMethodNotAllowed, resp.Code, method)
			req.Equal("Method Not Allowed", resp.Body.String(), method)
		}
	})

	t.Run("a request without a method is unroutable", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/leaf", nil)
		req.Equal(http.StatusMethodNotAllowed, resp.Code)
	})

	t.Run("errors and panics become a 500", func(t *testing.T) {
		req := require.New(t)
		for _, method := range []string{"fail", "explode"} {
			resp := fixture.get("/leaf", url.Values{"method": {method}})
			req.Equal(http.StatusInternalServerError, resp.Code, method)
			req.Equal("Internal Server Error - could not process the request", resp.Body.String(), method)
		}
	})

	t.Run("a child that cannot be created is a 500", func(t *testing.T) {
		resp := fixture.get("/api/broken", url.Values{"method": {"anything"}})
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("a child without methods is a 405", func(t *testing.T) {
		resp := fixture.get("/api/plain", url.Values{"method": {"anything"}})
		require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	})

	t.Run("return info wraps results and uses the node method param", func(t *testing.T) {
		req := require.New(t)

		resp := fixture.get("/info", url.Values{"action": {"echo"}, "value": {"hi"}})
		req.Equal(http.StatusOK, resp.Code)
		req.JSONEq(`{"status":200,"data":"hi"}`, resp.Body.String())

		resp = fixture.get("/info", url.Values{"action": {"nothing"}})
		req.Equal(http.StatusMethodNotAllowed, resp.Code)
		req.JSONEq(`{"status":405,"data":null,"error":"Method Not Allowed"}`, resp.Body.String())
	})
}

func TestWebService_NestedControllers(t *testing.T) {
	fixture := newServiceFixture(t)

	t.Run("a controller hands the request to a nested controller", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api/v1/rest", url.Values{"method": {"get"}, "id": {"7"}})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal("got 7", resp.Body.String())
	})

	t.Run("the nested controller falls back to its main entry", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api/v1", url.Values{"method": {"list_users"}})

		req.Equal(http.StatusOK, resp.Code)
		req.JSONEq(`["ann","bob"]`, resp.Body.String())
	})

	t.Run("methods receive the innermost controller", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api/v1/users", url.Values{"method": {"controller_node"}})
		req.Equal("v1", resp.Body.String())

		resp = fixture.get("/api/users", url.Values{"method": {"controller_node"}})
		req.Equal("api", resp.Body.String())
	})

	t.Run("a nested controller without a further frame is a 404", func(t *testing.T) {
		req := require.New(t)
		registry := NewRegistryMap()
		req.NoError(registry.Add(NewWebServiceFactory("Outer", nil)))
		req.NoError(registry.Add(NewWebServiceFactory("Inner", nil)))

		app, err := NewApplication(mustParseManifest(t, `{"outer": {"class": "Outer", "main": true, "controller": true, "sub": {
			"inner": {"class": "Inner", "main": true, "controller": true}
		}}}`), registry)
		req.NoError(err)

		recorder := httptest.NewRecorder()
		app.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/?method=anything", nil))
		req.Equal(http.StatusNotFound, recorder.Code)
	})

	t.Run("batch addresses walk nested controllers", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api", url.Values{
			"multi_request": {"1"},
			"params":        {`{"a": {"method": "v1/users/controller_node"}, "b": {"method": "v1/list_users"}, "c": {"method": "users/controller_node"}}`},
		})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal(`{"a":"v1","b":"Not Found","c":"api"}`, resp.Body.String())
	})
}

func TestWebService_Restful(t *testing.T) {
	fixture := newServiceFixture(t)

	t.Run("the verb selects the method", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/rest", url.Values{"id": {"7"}})
		req.Equal(http.StatusOK, resp.Code)
		req.Equal("got 7", resp.Body.String())
	})

	t.Run("post reads the form", func(t *testing.T) {
		req := require.New(t)
		request := httptest.NewRequest(http.MethodPost, "/rest", strings.NewReader("name=ann"))
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp := fixture.serve(request)
		req.Equal(http.StatusOK, resp.Code)
		req.Equal("created ann", resp.Body.String())
	})

	t.Run("a verb without a method is a 405", func(t *testing.T) {
		resp := fixture.serve(httptest.NewRequest(http.MethodDelete, "/rest", nil))
		require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	})
}

func TestWebService_MultiRequest(t *testing.T) {
	fixture := newServiceFixture(t)

	t.Run("a failing entry does not affect the others", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api", url.Values{
			"multi_request": {"1"},
			"params":        {`{"r1": {"method": "nonexistent/foo"}, "r2": {"method": "users/list_users"}}`},
		})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal(`{"r1":"Not Found","r2":["ann","bob"]}`, resp.Body.String())
	})

	t.Run("entries see the results of earlier entries", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/api", url.Values{
			"multi_request": {"true"},
			"params":        {`{"a": {"method": "users/list_users"}, "b": {"method": "users/fail"}, "c": {"method": "users/count_prior"}}`},
		})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal(`{"a":["ann","bob"],"b":"Internal Server Error - could not process the request","c":2}`, resp.Body.String())
	})

	t.Run("a json body is accepted", func(t *testing.T) {
		req := require.New(t)
		body := `{"multi_request": true, "params": {"x": {"method": "users/echo", "value": "v"}, "y": {"method": "broken/anything"}}}`
		request := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")

		resp := fixture.serve(request)
		req.Equal(http.StatusOK, resp.Code)
		req.Equal(`{"x":"v","y":"Internal Server Error"}`, resp.Body.String())
	})

	t.Run("an empty flag does not start a batch", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/leaf", url.Values{
			"multi_request": {""},
			"params":        {`{"one": {"method": "echo", "value": "1"}}`},
		})

		req.Equal(http.StatusMethodNotAllowed, resp.Code)
		req.Equal("Method Not Allowed", resp.Body.String())
	})

	t.Run("a leaf runs entries against its own api", func(t *testing.T) {
		req := require.New(t)
		resp := fixture.get("/leaf", url.Values{
			"multi_request": {"1"},
			"params":        {`{"one": {"method": "echo", "value": "1"}, "two": "not an object"}`},
		})

		req.Equal(`{"one":"1","two":"Method Not Allowed"}`, resp.Body.String())
	})
}

func TestWebService_LongPolling(t *testing.T) {
	shortenLongPolling(t, 2*time.Second, 5*time.Millisecond)

	t.Run("polling stops at the first update", func(t *testing.T) {
		req := require.New(t)
		fixture := newServiceFixture(t)
		resp := fixture.get("/api", url.Values{
			"long_polling": {"1"},
			"params":       {`{"p": {"method": "users/poll"}}`},
		})

		req.Equal(http.StatusOK, resp.Code)
		req.Equal(`{"p":["update"]}`, resp.Body.String())
		req.Equal(int32(3), fixture.polls.Load())
	})

	t.Run("polling stops when every entry fails", func(t *testing.T) {
		req := require.New(t)
		fixture := newServiceFixture(t)
		started := time.Now()
		resp := fixture.get("/api", url.Values{
			"long_polling": {"1"},
			"params":       {`{"p": {"method": "users/missing"}}`},
		})

		req.Equal(`{"p":"Method Not Allowed"}`, resp.Body.String())
		req.Less(time.Since(started), time.Second)
	})

	t.Run("polling is refused where it is not enabled", func(t *testing.T) {
		req := require.New(t)
		fixture := newServiceFixture(t)
		resp := fixture.get("/leaf", url.Values{
			"long_polling": {"1"},
			"params":       {`{"p": {"method": "poll"}}`},
		})

		req.Equal(http.StatusForbidden, resp.Code)
		req.Equal("Forbidden - long polling is not enabled", resp.Body.String())
		req.Equal(int32(0), fixture.polls.Load())
	})
}

func TestWebService_LongPollingClientGone(t *testing.T) {
	shortenLongPolling(t, 5*time.Second, 10*time.Millisecond)

	req := require.New(t)
	fixture := newServiceFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	values := url.Values{
		"long_polling": {"1"},
		"params":       {`{"p": {"method": "users/idle"}}`},
	}
	request := httptest.NewRequest(http.MethodGet, "/api?"+values.Encode(), nil).WithContext(ctx)

	started := time.Now()
	resp := fixture.serve(request)

	req.Less(time.Since(started), 2*time.Second)
	req.Equal(http.StatusOK, resp.Code)
	req.Equal(`{"p":[]}`, resp.Body.String())
}

func TestWebService_LongPollingTimeout(t *testing.T) {
	shortenLongPolling(t, 50*time.Millisecond, 5*time.Millisecond)

	req := require.New(t)
	fixture := newServiceFixture(t)
	resp := fixture.get("/api", url.Values{
		"long_polling": {"1"},
		"params":       {`{"p": {"method": "users/idle"}}`},
	})

	req.Equal(http.StatusOK, resp.Code)
	req.Equal(`{"p":[]}`, resp.Body.String())
}

func TestWebService_Handle(t *testing.T) {
	t.Run("only the first web service of a request dispatches", func(t *testing.T) {
		req := require.New(t)
		fixture := newServiceFixture(t)
		request := httptest.NewRequest(http.MethodGet, "/leaf?method=echo&value=once", nil)
		recorder := httptest.NewRecorder()

		rc := newRequestContext(recorder, request, fixture.app)
		route, err := fixture.app.Manifest().Resolve(ExtractSegments(request.URL.Path, "/"), nil, "")
		req.NoError(err)
		rc.Route = route
		rc.Cursor = NewCursor(route.Frames)

		handler, _, err := rc.NextHandler()
		req.NoError(err)
		ws := handler.(*WebService)

		ws.Handle(rc)
		ws.Handle(rc)
		req.Equal("once", recorder.Body.String())
	})
}

func shortenLongPolling(t *testing.T, timeout, interval time.Duration) {
	previousTimeout, previousInterval := longPollingTimeout, longPollingInterval
	longPollingTimeout, longPollingInterval = timeout, interval
	t.Cleanup(func() {
		longPollingTimeout, longPollingInterval = previousTimeout, previousInterval
	})
}
