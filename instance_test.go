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
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type greeterApi struct {
	rc *RequestContext
}

func (api *greeterApi) Methods() *MethodSet {
	return NewMethodSet().
		Add("greet", func(data Params, _ *Results, _ *WebService) (interface{}, error) {
			return map[string]string{"greeting": "hello " + data.String("name")}, nil
		}).
		Add("serverName", func(Params, *Results, *WebService) (interface{}, error) {
			serverContext := ServerContextFromRequestContext(api.rc.Context())
			if serverContext == nil {
				return nil, errors.New("no server context")
			}
			return serverContext.ServerConfig.Name, nil
		})
}

func freeAddress(t *testing.T) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())
	return address
}

func TestInstance(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	manifestPath := filepath.Join(dir, "greeter.json")
	req.NoError(os.WriteFile(manifestPath, []byte(`{"greeter": {"class": "Greeter", "main": true}}`), 0600))

	address := freeAddress(t)
	configPath := filepath.Join(dir, "config.yml")
	req.NoError(os.WriteFile(configPath, []byte(fmt.Sprintf(`
web:
  - name: test
    bindPoints:
      - interface: %s
    apps:
      - manifest: %s
        basePath: /v1
`, address, manifestPath)), 0600))

	registry := NewRegistryMap()
	req.NoError(registry.Add(NewWebServiceFactory("Greeter", func(rc *RequestContext) (Api, error) {
		return &greeterApi{rc: rc}, nil
	})))

	instance := NewInstance(registry)
	req.NoError(instance.WithPrometheus(prometheus.NewRegistry()))
	req.NoError(instance.LoadConfigFile(configPath))
	req.True(instance.Enabled())
	req.NoError(instance.Run())
	t.Cleanup(func() {
		instance.Shutdown(context.Background())
	})

	req.Len(instance.Servers(), 1)
	req.Len(instance.Servers()[0].ListenAddrs(), 1)

	t.Run("requests under the base path are dispatched", func(t *testing.T) {
		req := require.New(t)
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get("http://" + address + "/v1/greeter?method=greet&name=ann")
		req.NoError(err)
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		req.NoError(err)
		req.Equal(http.StatusOK, resp.StatusCode)
		req.JSONEq(`{"greeting":"hello ann"}`, string(body))
		req.NotEmpty(resp.Header.Get(RequestIdHeader))
	})

	t.Run("handlers can reach the server context", func(t *testing.T) {
		req := require.New(t)
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get("http://" + address + "/v1?method=server_name")
		req.NoError(err)
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		req.NoError(err)
		req.Equal("test", string(body))
	})

	t.Run("the only application is the default for other paths", func(t *testing.T) {
		req := require.New(t)
		client := &http.Client{Timeout: 5 * time.Second}

		resp, err := client.Get("http://" + address + "/elsewhere?method=greet&name=bob")
		req.NoError(err)
		defer func() { _ = resp.Body.Close() }()

		req.Equal(http.StatusOK, resp.StatusCode)
	})
}

func TestInstance_Build(t *testing.T) {
	t.Run("building without configuration fails", func(t *testing.T) {
		require.Error(t, NewInstance(NewRegistryMap()).Build())
	})

	t.Run("a missing manifest fails the build", func(t *testing.T) {
		req := require.New(t)
		instance := NewInstance(NewRegistryMap())
		req.NoError(instance.LoadConfig(parseYaml(t, fmt.Sprintf(`
web:
  - name: test
    bindPoints: [{interface: "127.0.0.1:18080"}]
    apps: [{manifest: %s}]
`, filepath.Join(t.TempDir(), "missing.json")))))
		req.Error(instance.Build())
	})

	t.Run("unregistered classes fail the build", func(t *testing.T) {
		req := require.New(t)
		manifestPath := filepath.Join(t.TempDir(), "m.json")
		req.NoError(os.WriteFile(manifestPath, []byte(`{"a": {"class": "Unknown", "main": true}}`), 0600))

		instance := NewInstance(NewRegistryMap())
		req.NoError(instance.LoadConfig(parseYaml(t, fmt.Sprintf(`
web:
  - name: test
    bindPoints: [{interface: "127.0.0.1:18080"}]
    apps: [{manifest: %s}]
`, manifestPath))))
		err := instance.Build()
		req.Error(err)
		req.Contains(err.Error(), "Unknown")
	})
}
