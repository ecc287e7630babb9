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
	"strings"

	"github.com/pkg/errors"
)

// AppConfig declares an Application hosted by a ServerConfig: the manifest it serves, the base path it is mounted
// under and whether it receives requests no other application matches.
type AppConfig struct {
	Name         string
	ManifestPath string
	BasePath     string
	BaseUrl      string
	Default      bool
}

// Parse the configuration map for an AppConfig.
func (app *AppConfig) Parse(appConfigMap map[string]interface{}) error {
	manifestPath, err := optionalString(appConfigMap, "manifest")
	if err != nil {
		return err
	}
	if manifestPath == "" {
		return errors.New("manifest is required")
	}
	app.ManifestPath = manifestPath

	if app.Name, err = optionalString(appConfigMap, "name"); err != nil {
		return err
	}

	if app.BasePath, err = optionalString(appConfigMap, "basePath"); err != nil {
		return err
	}
	if app.BasePath == "" {
		app.BasePath = "/"
	}

	if app.BaseUrl, err = optionalString(appConfigMap, "baseUrl"); err != nil {
		return err
	}

	if defaultVal, ok := appConfigMap["default"]; ok {
		if isDefault, ok := defaultVal.(bool); ok {
			app.Default = isDefault
		} else {
			return errors.New("default must be a boolean")
		}
	}

	return nil
}

// Validate this configuration object.
func (app *AppConfig) Validate() error {
	if strings.TrimSpace(app.ManifestPath) == "" {
		return errors.New("manifest must be specified")
	}

	if !strings.HasPrefix(app.BasePath, "/") {
		return errors.Errorf("basePath [%s] must start with /", app.BasePath)
	}

	return nil
}

// Options returns the Application options described by this configuration.
func (app *AppConfig) Options() []ApplicationOption {
	name := app.Name
	if name == "" {
		name = app.ManifestPath
	}
	return []ApplicationOption{
		WithName(name),
		WithBasePath(app.BasePath),
		WithBaseUrl(app.BaseUrl),
		AsDefault(app.Default),
	}
}

func optionalString(configMap map[string]interface{}, key string) (string, error) {
	val, ok := configMap[key]
	if !ok {
		return "", nil
	}
	str, ok := val.(string)
	if !ok {
		return "", errors.Errorf("%s must be a string", key)
	}
	return str, nil
}
