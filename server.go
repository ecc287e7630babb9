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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/debugz"
	transporttls "github.com/openziti/transport/v2/tls"
)

// ServerContext is stored on every request context of a Server and provides access to the configuration that
// produced it.
type ServerContext struct {
	BindPoint    *BindPointConfig
	ServerConfig *ServerConfig
}

// ServerContextFromRequestContext is a utility function to retrieve a *ServerContext reference from the http.Request
// context.
func ServerContextFromRequestContext(ctx context.Context) *ServerContext {
	if val := ctx.Value(ServerContextKey); val != nil {
		if serverContext, ok := val.(*ServerContext); ok {
			return serverContext
		}
	}
	return nil
}

type namedHttpServer struct {
	*http.Server
	AppBindingList  []string
	BindPointConfig *BindPointConfig
	ServerConfig    *ServerConfig
	listener        net.Listener
}

func (s *namedHttpServer) NewBaseContext(_ net.Listener) context.Context {
	serverContext := &ServerContext{
		BindPoint:    s.BindPointConfig,
		ServerConfig: s.ServerConfig,
	}
	return context.WithValue(context.Background(), ServerContextKey, serverContext)
}

// Server represents all the http.Server's and Application's necessary to run a single ServerConfig
type Server struct {
	HttpServers    []*namedHttpServer
	Applications   []*Application
	Handler        http.Handler
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})
	ServerConfig   *ServerConfig
	logWriter      *io.PipeWriter
}

// NewServer creates a new Server from a ServerConfig. Every AppConfig is turned into an Application backed by the
// instance Registry, and the applications are joined by the instance DemuxFactory.
func NewServer(instance *Instance, serverConfig *ServerConfig) (*Server, error) {
	logWriter := pfxlog.Logger().Writer()

	server := &Server{
		logWriter:    logWriter,
		HttpServers:  []*namedHttpServer{},
		ServerConfig: serverConfig,
	}

	var handlers []ApiHandler
	var appBindingList []string
	for _, appConfig := range serverConfig.Apps {
		manifest, err := LoadManifest(appConfig.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("error creating server %s: %v", serverConfig.Name, err)
		}

		opts := append(appConfig.Options(), WithMetrics(instance.Metrics))
		if instance.ViewFactory != nil {
			opts = append(opts, WithViewFactory(instance.ViewFactory))
		}

		app, err := NewApplication(manifest, instance.Registry, opts...)
		if err != nil {
			return nil, fmt.Errorf("error creating server %s: %v", serverConfig.Name, err)
		}

		server.Applications = append(server.Applications, app)
		handlers = append(handlers, app)
		appBindingList = append(appBindingList, app.Binding())
	}

	demuxHandler, err := instance.DemuxFactory.Build(handlers)
	if err != nil {
		return nil, fmt.Errorf("error creating server: %v", err)
	}
	server.Handler = server.wrapHandler(demuxHandler)

	var tlsConfig *tls.Config
	if serverConfig.Identity != nil {
		tlsConfig = serverConfig.Identity.ServerTLSConfig()
		tlsConfig.ClientAuth = tls.RequestClientCert
		tlsConfig.MinVersion = uint16(serverConfig.Options.MinTLSVersion)
		tlsConfig.MaxVersion = uint16(serverConfig.Options.MaxTLSVersion)
	}

	for _, bindPoint := range serverConfig.BindPoints {
		namedServer := &namedHttpServer{
			AppBindingList:  appBindingList,
			ServerConfig:    serverConfig,
			BindPointConfig: bindPoint,
			Server: &http.Server{
				Addr:         bindPoint.InterfaceAddress,
				WriteTimeout: serverConfig.Options.WriteTimeout,
				ReadTimeout:  serverConfig.Options.ReadTimeout,
				IdleTimeout:  serverConfig.Options.IdleTimeout,
				Handler:      server.Handler,
				TLSConfig:    tlsConfig,
				ErrorLog:     log.New(logWriter, "", 0),
			},
		}
		namedServer.BaseContext = namedServer.NewBaseContext
		server.HttpServers = append(server.HttpServers, namedServer)
	}

	return server, nil
}

func (server *Server) wrapHandler(handler http.Handler) http.Handler {
	//innermost/bottom -> outermost/top
	handler = server.wrapPanicRecovery(handler)
	handler = NewCompressionHandler(handler)
	return handler
}

// wrapPanicRecovery wraps a http.Handler with another http.Handler that provides recovery.
func (server *Server) wrapPanicRecovery(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if panicVal := recover(); panicVal != nil {
				if server.OnHandlerPanic != nil {
					server.OnHandlerPanic(writer, request, panicVal)
					return
				}
				pfxlog.Logger().Errorf("panic caught by server handler: %v\n%v", panicVal, debugz.GenerateLocalStack())
				writer.WriteHeader(http.StatusInternalServerError)
			}
		}()
		handler.ServeHTTP(writer, request)
	})
}

// Start listens on every bind point and serves each http.Server on its own goroutine. Listening errors are returned,
// serving errors are logged.
func (server *Server) Start() error {
	logger := pfxlog.Logger()
	for _, httpServer := range server.HttpServers {
		listener, err := httpServer.listen()
		if err != nil {
			return fmt.Errorf("error listening on %s for server %s: %v", httpServer.Addr, server.ServerConfig.Name, err)
		}
		httpServer.listener = listener

		logger.Infof("server %s listening on %s with apps: %v", server.ServerConfig.Name, listener.Addr(), httpServer.AppBindingList)

		localServer := httpServer
		go func() {
			if err := localServer.Serve(localServer.listener); !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("error serving %s for server %s: %v", localServer.Addr, server.ServerConfig.Name, err)
			}
		}()
	}
	return nil
}

func (s *namedHttpServer) listen() (net.Listener, error) {
	if s.TLSConfig == nil {
		return net.Listen("tcp", s.Addr)
	}

	cfg := s.TLSConfig
	// make sure to listen to the expected protocols
	cfg.NextProtos = append(cfg.NextProtos, "h2", "http/1.1", "")
	return transporttls.ListenTLS(s.Addr, s.ServerConfig.Name, cfg)
}

// ListenAddrs returns the addresses of the started listeners.
func (server *Server) ListenAddrs() []net.Addr {
	var addrs []net.Addr
	for _, httpServer := range server.HttpServers {
		if httpServer.listener != nil {
			addrs = append(addrs, httpServer.listener.Addr())
		}
	}
	return addrs
}

// Shutdown stops the server and all underlying http.Server's
func (server *Server) Shutdown(ctx context.Context) {
	for _, httpServer := range server.HttpServers {
		if err := httpServer.Shutdown(ctx); err != nil {
			pfxlog.Logger().Warnf("error shutting down %s for server %s: %v", httpServer.Addr, server.ServerConfig.Name, err)
		}
	}
	_ = server.logWriter.Close()
}
