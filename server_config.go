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

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/identity"
	"github.com/pkg/errors"
)

// ServerConfig is the configuration that will eventually be used to create a xdispatch.Server: the applications it
// hosts, the bind points it listens on and, optionally, the identity used to serve TLS.
type ServerConfig struct {
	Name       string
	Apps       []*AppConfig
	BindPoints []*BindPointConfig
	Options    Options

	Identity identity.Identity
}

// Parse parses a configuration map to set all relevant ServerConfig values.
func (config *ServerConfig) Parse(configMap map[string]interface{}, pathContext string) error {
	//parse name, required, string
	name, err := optionalString(configMap, "name")
	if err != nil {
		return err
	}
	if name == "" {
		return errors.New("name is required")
	}
	config.Name = name

	//parse apps, require 1
	appMaps, err := requiredMapArray(configMap, "apps")
	if err != nil {
		return err
	}
	for i, appMap := range appMaps {
		app := &AppConfig{}
		if err := app.Parse(appMap); err != nil {
			return fmt.Errorf("error parsing app configuration at index [%d]: %v", i, err)
		}
		config.Apps = append(config.Apps, app)
	}

	//parse bindPoints
	bindPointMaps, err := requiredMapArray(configMap, "bindPoints")
	if err != nil {
		return err
	}
	for i, bindPointMap := range bindPointMaps {
		bindPoint := &BindPointConfig{}
		if err := bindPoint.Parse(bindPointMap); err != nil {
			return errors.Wrapf(err, "error parsing bindPoint configuration at index [%d]", i)
		}
		config.BindPoints = append(config.BindPoints, bindPoint)
	}

	//parse identity, optional, serves plain http when absent
	if identityInterface, ok := configMap["identity"]; ok {
		identityMap, ok := asMap(identityInterface)
		if !ok {
			return errors.New("identity section must be a map if defined")
		}
		identityConfig, err := parseIdentityConfig(identityMap, pathContext+".identity")
		if err != nil {
			return fmt.Errorf("error parsing identity section: %v", err)
		}
		if config.Identity, err = identity.LoadIdentity(*identityConfig); err != nil {
			return fmt.Errorf("error loading identity: %v", err)
		}
		if err := config.Identity.WatchFiles(); err != nil {
			pfxlog.Logger().Warnf("could not enable file watching on server identity: %v", err)
		}
	}

	//parse options
	config.Options = Options{}
	config.Options.Default()

	if optionsInterface, ok := configMap["options"]; ok {
		if optionMap, ok := asMap(optionsInterface); ok {
			if err := config.Options.Parse(optionMap); err != nil {
				return fmt.Errorf("error parsing options section: %v", err)
			}
		} //no else, options are optional
	}

	return nil
}

// Validate all ServerConfig values
func (config *ServerConfig) Validate() error {
	if config.Name == "" {
		return errors.New("name must not be empty")
	}

	if len(config.Apps) == 0 {
		return errors.New("no apps specified, must specify at least one")
	}

	basePaths := map[string]int{}
	for i, app := range config.Apps {
		if err := app.Validate(); err != nil {
			return fmt.Errorf("invalid app at index [%d]: %v", i, err)
		}
		if previous, ok := basePaths[app.BasePath]; ok {
			return fmt.Errorf("invalid app at index [%d]: basePath [%s] already used by app at index [%d]", i, app.BasePath, previous)
		}
		basePaths[app.BasePath] = i
	}

	if len(config.BindPoints) == 0 {
		return errors.New("no bindPoint specified, must specify at lest one")
	}

	for i, bindPoint := range config.BindPoints {
		if err := bindPoint.Validate(); err != nil {
			return fmt.Errorf("invalid bindPoint at index [%d]: %v", i, err)
		}
	}

	return config.Options.Validate()
}

func requiredMapArray(configMap map[string]interface{}, key string) ([]map[string]interface{}, error) {
	arrayInterface, ok := configMap[key]
	if !ok {
		return nil, errors.Errorf("%s section is required", key)
	}

	arrayVals, ok := arrayInterface.([]interface{})
	if !ok {
		return nil, errors.Errorf("%s section must be an array", key)
	}

	var result []map[string]interface{}
	for i, val := range arrayVals {
		valMap, ok := asMap(val)
		if !ok {
			return nil, errors.Errorf("error parsing %s configuration at index [%d]: not a map", key, i)
		}
		result = append(result, valMap)
	}
	return result, nil
}

func parseIdentityConfig(identityMap map[string]interface{}, pathContext string) (*identity.Config, error) {
	idConfig, err := identity.NewConfigFromMap(toInterfaceMap(identityMap))
	if err != nil {
		return nil, fmt.Errorf("error parsing identity: %v", err)
	}

	if err = idConfig.ValidateWithPathContext(pathContext); err != nil {
		return nil, fmt.Errorf("error parsing identity: %v", err)
	}

	return idConfig, nil
}
