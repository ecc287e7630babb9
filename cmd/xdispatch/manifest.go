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

package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xdispatch"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check the structure of a manifest and list its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := xdispatch.LoadManifest(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = manifest.Walk(func(path string, node *xdispatch.ManifestNode) error {
				depth := strings.Count(path, "/")
				marker := ""
				if node.Main {
					marker = " (main)"
				}
				_, err := fmt.Fprintf(out, "%s%s -> %s%s\n", strings.Repeat("  ", depth), node.Name, node.HandlerId, marker)
				return err
			})
			if err != nil {
				return err
			}

			pfxlog.Logger().Debugf("manifest [%s] is valid", args[0])
			return nil
		},
	}
}

type frameOutput struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	HandlerId string `json:"class"`
	RoutePath string `json:"route"`
	UrlPath   string `json:"url"`
}

type routeOutput struct {
	Segments    []string      `json:"segments"`
	MaxIndexMap int           `json:"maxIndexMap"`
	AppParams   []string      `json:"appParams"`
	Frames      []frameOutput `json:"frames"`
}

func newRoutesCmd() *cobra.Command {
	var basePath string
	var baseUrl string

	cmd := &cobra.Command{
		Use:   "routes <manifest> <path>",
		Short: "Resolve a request path against a manifest and print the routing frames",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := xdispatch.LoadManifest(args[0])
			if err != nil {
				return err
			}

			route, err := manifest.Resolve(xdispatch.ExtractSegments(args[1], basePath), nil, baseUrl)
			if err != nil {
				return err
			}

			output := routeOutput{
				Segments:    route.Segments,
				MaxIndexMap: route.MaxIndexMap,
				AppParams:   route.Params(xdispatch.ScopeApp),
			}
			for _, frame := range route.Frames {
				output.Frames = append(output.Frames, frameOutput{
					Index:     frame.Index,
					Name:      frame.Name,
					HandlerId: frame.HandlerId,
					RoutePath: frame.RoutePath,
					UrlPath:   frame.UrlPath,
				})
			}

			encoded, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}

	cmd.Flags().StringVar(&basePath, "base-path", "/", "path prefix removed before resolving")
	cmd.Flags().StringVar(&baseUrl, "base-url", "", "prefix of the url of every frame")
	return cmd
}
