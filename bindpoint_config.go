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
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BindPointConfig represents the interface:port address of where a http.Server should listen for a ServerConfig and
// the public address that should be used to address it.
type BindPointConfig struct {
	InterfaceAddress string //<interface>:<port>
	Address          string //<ip/host>:<port>
}

// Parse the configuration map for a BindPointConfig.
func (bindPoint *BindPointConfig) Parse(config map[string]interface{}) error {
	var err error
	if bindPoint.InterfaceAddress, err = optionalString(config, "interface"); err != nil {
		return errors.Wrap(err, "could not use value for interface")
	}

	if bindPoint.Address, err = optionalString(config, "address"); err != nil {
		return errors.Wrap(err, "could not use value for address")
	}

	if bindPoint.Address == "" {
		bindPoint.Address = bindPoint.InterfaceAddress
	}

	return nil
}

// Validate this configuration object.
func (bindPoint *BindPointConfig) Validate() error {
	if err := validateHostPort(bindPoint.InterfaceAddress); err != nil {
		return errors.Errorf("invalid interface address [%s]: %v", bindPoint.InterfaceAddress, err)
	}

	if err := validateHostPort(bindPoint.Address); err != nil {
		return errors.Errorf("invalid advertise address [%s]: %v", bindPoint.Address, err)
	}

	return nil
}

func validateHostPort(address string) error {
	address = strings.TrimSpace(address)

	if address == "" {
		return errors.New("must not be an empty string or unspecified")
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return errors.Errorf("could not split host and port: %v", err)
	}

	if host == "" {
		return errors.New("host must be specified")
	}

	portNum, err := strconv.ParseInt(port, 10, 32)
	if err != nil {
		return errors.New("invalid port, must be a integer")
	}
	if portNum < 1 || portNum > 65535 {
		return errors.New("invalid port, must 1-65535")
	}

	return nil
}
