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
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ConfigError reports a manifest that cannot be used: a missing or duplicated main entry or a handler id that cannot
// be resolved.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid manifest: " + e.Reason
	}
	return fmt.Sprintf("invalid manifest at [%s]: %s", e.Path, e.Reason)
}

func configErrorf(path string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// manifestEntry is the JSON shape of a single manifest node
type manifestEntry struct {
	Class       string                                         `json:"class"`
	Main        bool                                           `json:"main,omitempty"`
	Restful     *bool                                          `json:"restful,omitempty"`
	Controller  *bool                                          `json:"controller,omitempty"`
	Inherited   *bool                                          `json:"inherited,omitempty"`
	ReturnInfo  *bool                                          `json:"return_info,omitempty"`
	LongPolling *bool                                          `json:"long_polling,omitempty"`
	MethodParam string                                         `json:"method_param,omitempty"`
	Sub         *orderedmap.OrderedMap[string, *manifestEntry] `json:"sub,omitempty"`
}

// ManifestNode is a single named entry of a Manifest. Optional dispatch settings are nil when the manifest does not
// declare them.
type ManifestNode struct {
	Name        string
	HandlerId   string
	Main        bool
	Restful     *bool
	Controller  *bool
	Inherited   *bool
	ReturnInfo  *bool
	LongPolling *bool
	MethodParam string

	children *orderedmap.OrderedMap[string, *ManifestNode]
}

// Child returns the child node with the given name or nil.
func (node *ManifestNode) Child(name string) *ManifestNode {
	if node == nil || node.children == nil {
		return nil
	}
	child, _ := node.children.Get(name)
	return child
}

// HasChildren reports whether the node declares a "sub" section with at least one entry.
func (node *ManifestNode) HasChildren() bool {
	return node != nil && node.children != nil && node.children.Len() > 0
}

// Children returns the child nodes in declaration order.
func (node *ManifestNode) Children() []*ManifestNode {
	if !node.HasChildren() {
		return nil
	}
	result := make([]*ManifestNode, 0, node.children.Len())
	for pair := node.children.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Default returns the child marked as main. Validated manifests always have exactly one for nodes with children.
func (node *ManifestNode) Default() *ManifestNode {
	for _, child := range node.Children() {
		if child.Main {
			return child
		}
	}
	return nil
}

// Manifest is an immutable tree of ManifestNode's. The root node has no handler id, its children are the top level
// entries of the manifest document.
type Manifest struct {
	root *ManifestNode
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read manifest [%s]", path)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load manifest [%s]", path)
	}
	return manifest, nil
}

// ParseManifest parses a JSON manifest document and checks its structure: every entry has a class, names are usable
// as URL segments and every level has exactly one main entry.
func ParseManifest(data []byte) (*Manifest, error) {
	entries := orderedmap.New[string, *manifestEntry]()
	if err := json.Unmarshal(data, entries); err != nil {
		return nil, errors.Wrap(err, "manifest must be a JSON object")
	}

	root := &ManifestNode{}
	children, err := buildChildren("", entries)
	if err != nil {
		return nil, err
	}
	root.children = children

	manifest := &Manifest{root: root}
	if err := manifest.checkStructure(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func buildChildren(parentPath string, entries *orderedmap.OrderedMap[string, *manifestEntry]) (*orderedmap.OrderedMap[string, *ManifestNode], error) {
	children := orderedmap.New[string, *ManifestNode]()

	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		path := joinRoute(parentPath, pair.Key)
		entry := pair.Value
		if entry == nil {
			return nil, configErrorf(path, "entry must be an object")
		}

		node := &ManifestNode{
			Name:        pair.Key,
			HandlerId:   strings.TrimSpace(entry.Class),
			Main:        entry.Main,
			Restful:     entry.Restful,
			Controller:  entry.Controller,
			Inherited:   entry.Inherited,
			ReturnInfo:  entry.ReturnInfo,
			LongPolling: entry.LongPolling,
			MethodParam: entry.MethodParam,
		}

		if entry.Sub != nil && entry.Sub.Len() > 0 {
			sub, err := buildChildren(path, entry.Sub)
			if err != nil {
				return nil, err
			}
			node.children = sub
		}

		children.Set(pair.Key, node)
	}

	return children, nil
}

func (manifest *Manifest) checkStructure() error {
	if !manifest.root.HasChildren() {
		return &ConfigError{Reason: "manifest declares no entries"}
	}

	return manifest.walk("", manifest.root, func(path string, node *ManifestNode) error {
		if node != manifest.root {
			if node.Name == "" || strings.Contains(node.Name, "/") {
				return configErrorf(path, "entry name [%s] is not a valid path segment", node.Name)
			}
			if node.HandlerId == "" {
				return configErrorf(path, "class is required")
			}
		}

		if !node.HasChildren() {
			return nil
		}

		var mains []string
		for _, child := range node.Children() {
			if child.Main {
				mains = append(mains, child.Name)
			}
		}

		switch {
		case len(mains) == 0:
			return configErrorf(path, "no main entry declared, exactly one child must be marked as main")
		case len(mains) > 1:
			return configErrorf(path, "too many main entries [%s], ensure only one child is marked as main", strings.Join(mains, ","))
		}
		return nil
	})
}

// Validate checks that every handler id in the manifest is registered. All unresolvable ids are reported.
func (manifest *Manifest) Validate(registry Registry) error {
	if registry == nil {
		return errors.New("a registry is required to validate a manifest")
	}

	var errs []error
	_ = manifest.Walk(func(path string, node *ManifestNode) error {
		if registry.Get(node.HandlerId) == nil {
			errs = append(errs, configErrorf(path, "class [%s] has no registered handler factory", node.HandlerId))
		}
		return nil
	})

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// Root returns the root node of the manifest.
func (manifest *Manifest) Root() *ManifestNode {
	return manifest.root
}

// Map looks up a node by route string, e.g. "pages/db". An empty route returns the root. Any missing intermediate
// key results in nil.
func (manifest *Manifest) Map(route string) *ManifestNode {
	node := manifest.root
	for _, name := range splitSegments(route) {
		if node = node.Child(name); node == nil {
			return nil
		}
	}
	return node
}

// Walk visits every non-root node depth first in declaration order. Walking stops at the first error.
func (manifest *Manifest) Walk(visit func(path string, node *ManifestNode) error) error {
	return manifest.walk("", manifest.root, func(path string, node *ManifestNode) error {
		if node == manifest.root {
			return nil
		}
		return visit(path, node)
	})
}

func (manifest *Manifest) walk(path string, node *ManifestNode, visit func(path string, node *ManifestNode) error) error {
	if err := visit(path, node); err != nil {
		return err
	}
	for _, child := range node.Children() {
		if err := manifest.walk(joinRoute(path, child.Name), child, visit); err != nil {
			return err
		}
	}
	return nil
}

func joinRoute(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
