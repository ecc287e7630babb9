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

	"github.com/sirupsen/logrus"
)

// HandlerFactory creates the handler named by a manifest class. New is called once per instantiation, with the
// RequestContext of the request that needs it. The returned value is usually a Controller, an Api or both.
type HandlerFactory interface {
	HandlerId() string
	New(rc *RequestContext) (interface{}, error)
}

// HandlerFactoryFunc adapts a function to a HandlerFactory for the given handler id.
type HandlerFactoryFunc struct {
	Id      string
	NewFunc func(rc *RequestContext) (interface{}, error)
}

var _ HandlerFactory = &HandlerFactoryFunc{}

// NewHandlerFactory creates a HandlerFactoryFunc
func NewHandlerFactory(handlerId string, newFunc func(rc *RequestContext) (interface{}, error)) *HandlerFactoryFunc {
	return &HandlerFactoryFunc{
		Id:      handlerId,
		NewFunc: newFunc,
	}
}

func (factory *HandlerFactoryFunc) HandlerId() string {
	return factory.Id
}

func (factory *HandlerFactoryFunc) New(rc *RequestContext) (interface{}, error) {
	return factory.NewFunc(rc)
}

// Registry describes a registry of handler id to HandlerFactory registrations
type Registry interface {
	Add(factory HandlerFactory) error
	Get(handlerId string) HandlerFactory
}

// RegistryMap is a basic Registry implementation backed by a simple mapping of handler id to HandlerFactory
// instances. It is populated during startup and only read afterwards.
type RegistryMap struct {
	factories map[string]HandlerFactory
}

// NewRegistryMap creates a new RegistryMap
func NewRegistryMap() *RegistryMap {
	return &RegistryMap{
		factories: map[string]HandlerFactory{},
	}
}

// Add adds a factory to the registry. Errors if a previous factory with the same handler id is registered.
func (registry *RegistryMap) Add(factory HandlerFactory) error {
	if factory == nil || factory.HandlerId() == "" {
		return fmt.Errorf("handler factories must declare a handler id")
	}

	logrus.Debugf("adding xdispatch factory with handler id: %v", factory.HandlerId())
	if _, ok := registry.factories[factory.HandlerId()]; ok {
		return fmt.Errorf("handler id [%s] already registered", factory.HandlerId())
	}

	registry.factories[factory.HandlerId()] = factory

	return nil
}

// Get retrieves a factory based on a handler id or nil if no factory for the handler id is registered
func (registry *RegistryMap) Get(handlerId string) HandlerFactory {
	return registry.factories[handlerId]
}
