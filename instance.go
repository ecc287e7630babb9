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
	"os"
	"sync"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Instance builds, starts and stops every Server declared in an InstanceConfig. Handler factories are added to the
// Registry before Build is called.
type Instance struct {
	Config       *InstanceConfig
	Registry     Registry
	DemuxFactory DemuxFactory
	Metrics      *Metrics
	ViewFactory  ViewFactory

	servers []*Server
}

// NewInstance creates an Instance reading the DefaultConfigSection and joining applications by base path.
func NewInstance(registry Registry) *Instance {
	return &Instance{
		Registry:     registry,
		DemuxFactory: &PathPrefixDemuxFactory{},
		Config: &InstanceConfig{
			Section: DefaultConfigSection,
		},
	}
}

// WithPrometheus registers dispatch metrics with registerer. Must be called before Build.
func (i *Instance) WithPrometheus(registerer prometheus.Registerer) error {
	metrics, err := NewMetrics(registerer)
	if err != nil {
		return errors.Wrap(err, "could not register dispatch metrics")
	}
	i.Metrics = metrics
	return nil
}

// Enabled returns true/false on whether the loaded configuration validated
func (i *Instance) Enabled() bool {
	return i.Config.Enabled()
}

// LoadConfigFile reads a YAML configuration file and loads it with LoadConfig.
func (i *Instance) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read configuration file [%s]", path)
	}

	configMap := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &configMap); err != nil {
		return errors.Wrapf(err, "could not parse configuration file [%s]", path)
	}

	return i.LoadConfig(configMap)
}

// LoadConfig parses and validates a configuration map.
func (i *Instance) LoadConfig(configMap map[string]interface{}) error {
	if err := i.Config.Parse(configMap); err != nil {
		return err
	}

	//validate sets enabled flag to true on success
	return i.Config.Validate()
}

// Build assembles all the servers from configuration and prepares to have Start() called.
func (i *Instance) Build() error {
	if !i.Enabled() {
		return errors.New("configuration has not been loaded")
	}

	for _, serverConfig := range i.Config.ServerConfigs {
		server, err := NewServer(i, serverConfig)
		if err != nil {
			return errors.Wrapf(err, "error building server %s", serverConfig.Name)
		}
		i.servers = append(i.servers, server)
	}

	return nil
}

// Start calls Start() on all Servers that were built by calling Build().
func (i *Instance) Start() error {
	for _, server := range i.servers {
		if err := server.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Run builds and starts the servers
func (i *Instance) Run() error {
	if err := i.Build(); err != nil {
		return err
	}
	return i.Start()
}

// Servers returns the servers created by Build.
func (i *Instance) Servers() []*Server {
	return i.servers
}

// Shutdown stops all running servers and waits for them until ctx is done.
func (i *Instance) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	wg := sync.WaitGroup{}
	for _, server := range i.servers {
		localServer := server
		wg.Add(1)
		go func() {
			defer wg.Done()
			localServer.Shutdown(ctx)
		}()
	}
	wg.Wait()

	pfxlog.Logger().Info("all servers stopped")
}
