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
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

const (
	MinTLSVersion = tls.VersionTLS12
	MaxTLSVersion = tls.VersionTLS13

	DefaultHttpWriteTimeout = time.Second * 10
	DefaultHttpReadTimeout  = time.Second * 5
	DefaultHttpIdleTimeout  = time.Second * 5

	// DefaultConfigSection is the configuration key holding the list of servers.
	DefaultConfigSection = "web"
)

// TlsVersionMap is a map of configuration strings to TLS version identifiers
var TlsVersionMap = map[string]int{
	"TLS1.0": tls.VersionTLS10,
	"TLS1.1": tls.VersionTLS11,
	"TLS1.2": tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13,
}

// InstanceConfig is the root configuration of an Instance: the servers declared in its section.
type InstanceConfig struct {
	SourceConfig map[string]interface{}

	ServerConfigs []*ServerConfig
	Section       string

	enabled bool
}

// Parse parses a configuration map, looking for a section that holds an array of ServerConfig's.
func (config *InstanceConfig) Parse(configMap map[string]interface{}) error {
	config.SourceConfig = configMap

	if config.Section == "" {
		return errors.New("web section not specified for configuration")
	}

	sectionVal, ok := configMap[config.Section]
	if !ok {
		return fmt.Errorf("section [%s] must be defined", config.Section)
	}

	sectionArrayVals, ok := sectionVal.([]interface{})
	if !ok {
		return fmt.Errorf("section [%s] must be an array of servers", config.Section)
	}

	for i, sectionArrayVal := range sectionArrayVals {
		sectionMap, ok := asMap(sectionArrayVal)
		if !ok {
			return fmt.Errorf("error parsing web configuration [%s] at index [%d]: not a map", config.Section, i)
		}

		serverConfig := &ServerConfig{}
		if err := serverConfig.Parse(sectionMap, fmt.Sprintf("%s[%d]", config.Section, i)); err != nil {
			return fmt.Errorf("error parsing web configuration [%s] at index [%d]: %v", config.Section, i, err)
		}
		config.ServerConfigs = append(config.ServerConfigs, serverConfig)
	}

	return nil
}

// Validate validates all ServerConfig's. Server names must be unique.
func (config *InstanceConfig) Validate() error {
	if len(config.ServerConfigs) == 0 {
		return fmt.Errorf("no servers declared in section [%s]", config.Section)
	}

	names := map[string]struct{}{}
	var errs []error
	for i, serverConfig := range config.ServerConfigs {
		if err := serverConfig.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("could not validate server at %s[%d]: %v", config.Section, i, err))
			continue
		}
		if _, ok := names[serverConfig.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate server name [%s] at %s[%d]", serverConfig.Name, config.Section, i))
		}
		names[serverConfig.Name] = struct{}{}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	//enabled only after validation passes
	config.enabled = true

	return nil
}

// Enabled returns true/false on whether this configuration should be considered "enabled". Set to true after
// Validate passes.
func (config *InstanceConfig) Enabled() bool {
	return config.enabled
}

// Options is the shared options for a ServerConfig.
type Options struct {
	TimeoutOptions
	TlsVersionOptions
}

// Default provides defaults for all necessary values
func (options *Options) Default() {
	options.TimeoutOptions.Default()
	options.TlsVersionOptions.Default()
}

// Parse parses a configuration map
func (options *Options) Parse(optionsMap map[string]interface{}) error {
	if err := options.TimeoutOptions.Parse(optionsMap); err != nil {
		return fmt.Errorf("error parsing options: %v", err)
	}

	if err := options.TlsVersionOptions.Parse(optionsMap); err != nil {
		return fmt.Errorf("error parsing options: %v", err)
	}

	return nil
}

// Validate validates timeouts and TLS versions
func (options *Options) Validate() error {
	if err := options.TlsVersionOptions.Validate(); err != nil {
		return fmt.Errorf("invalid TLS version option: %v", err)
	}

	if err := options.TimeoutOptions.Validate(); err != nil {
		return fmt.Errorf("invalid timeout option: %v", err)
	}

	return nil
}

// TimeoutOptions represents http timeout options
type TimeoutOptions struct {
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Default defaults all HTTP timeout options
func (timeoutOptions *TimeoutOptions) Default() {
	timeoutOptions.WriteTimeout = DefaultHttpWriteTimeout
	timeoutOptions.ReadTimeout = DefaultHttpReadTimeout
	timeoutOptions.IdleTimeout = DefaultHttpIdleTimeout
}

// Parse parses a config map
func (timeoutOptions *TimeoutOptions) Parse(config map[string]interface{}) error {
	fields := map[string]*time.Duration{
		"readTimeout":  &timeoutOptions.ReadTimeout,
		"idleTimeout":  &timeoutOptions.IdleTimeout,
		"writeTimeout": &timeoutOptions.WriteTimeout,
	}

	for key, target := range fields {
		interfaceVal, ok := config[key]
		if !ok {
			continue
		}
		durationStr, ok := interfaceVal.(string)
		if !ok {
			return fmt.Errorf("could not use value for %s, not a string", key)
		}
		duration, err := time.ParseDuration(durationStr)
		if err != nil {
			return fmt.Errorf("could not parse %s %s as a duration (e.g. 1m): %v", key, durationStr, err)
		}
		*target = duration
	}

	return nil
}

// Validate validates all settings and return nil or an error
func (timeoutOptions *TimeoutOptions) Validate() error {
	if timeoutOptions.WriteTimeout <= 0 {
		return fmt.Errorf("value [%s] for writeTimeout too low, must be positive", timeoutOptions.WriteTimeout.String())
	}

	if timeoutOptions.ReadTimeout <= 0 {
		return fmt.Errorf("value [%s] for readTimeout too low, must be positive", timeoutOptions.ReadTimeout.String())
	}

	if timeoutOptions.IdleTimeout <= 0 {
		return fmt.Errorf("value [%s] for idleTimeout too low, must be positive", timeoutOptions.IdleTimeout.String())
	}

	return nil
}

// TlsVersionOptions represents TLS version options
type TlsVersionOptions struct {
	MinTLSVersion    int
	minTLSVersionStr string

	MaxTLSVersion    int
	maxTLSVersionStr string
}

// Default defaults TLS versions
func (tlsVersionOptions *TlsVersionOptions) Default() {
	tlsVersionOptions.MinTLSVersion = MinTLSVersion
	tlsVersionOptions.MaxTLSVersion = MaxTLSVersion
}

// Parse parses a config map
func (tlsVersionOptions *TlsVersionOptions) Parse(config map[string]interface{}) error {
	var err error
	if tlsVersionOptions.minTLSVersionStr, err = parseTlsVersion(config, "minTLSVersion", &tlsVersionOptions.MinTLSVersion); err != nil {
		return err
	}
	if tlsVersionOptions.maxTLSVersionStr, err = parseTlsVersion(config, "maxTLSVersion", &tlsVersionOptions.MaxTLSVersion); err != nil {
		return err
	}
	return nil
}

func parseTlsVersion(config map[string]interface{}, key string, target *int) (string, error) {
	interfaceVal, ok := config[key]
	if !ok {
		return "", nil
	}
	versionStr, ok := interfaceVal.(string)
	if !ok {
		return "", fmt.Errorf("could not use value for %s, not an string", key)
	}
	version, ok := TlsVersionMap[versionStr]
	if !ok {
		return "", fmt.Errorf("could not use value for %s, invalid value [%s]", key, versionStr)
	}
	*target = version
	return versionStr, nil
}

// Validate validates the configuration values and returns nil or error
func (tlsVersionOptions *TlsVersionOptions) Validate() error {
	if tlsVersionOptions.MinTLSVersion > tlsVersionOptions.MaxTLSVersion {
		return fmt.Errorf("minTLSVersion [%s] must be less than or equal to maxTLSVersion [%s]", tlsVersionOptions.minTLSVersionStr, tlsVersionOptions.maxTLSVersionStr)
	}

	return nil
}

// asMap accepts both the map shape produced by yaml.v3 and the one produced by yaml.v2 style decoders.
func asMap(val interface{}) (map[string]interface{}, bool) {
	switch typed := val.(type) {
	case map[string]interface{}:
		return typed, true
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			result[fmt.Sprint(k)] = v
		}
		return result, true
	}
	return nil, false
}

// toInterfaceMap converts a yaml.v3 style map, recursively, to the map shape openziti/identity parses.
func toInterfaceMap(val map[string]interface{}) map[interface{}]interface{} {
	result := make(map[interface{}]interface{}, len(val))
	for k, v := range val {
		if nested, ok := v.(map[string]interface{}); ok {
			result[k] = toInterfaceMap(nested)
		} else {
			result[k] = v
		}
	}
	return result
}
