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
)

// ParamScope selects which part of the flat segment list Route.Params returns.
type ParamScope int

const (
	// ScopeAll is every segment of the resolved route.
	ScopeAll ParamScope = iota
	// ScopeApp is the segments after the deepest manifest frame, the free-form parameters of the application.
	ScopeApp
	// ScopeMap is the segments consumed by manifest frames.
	ScopeMap
)

// RoutingFrame is one resolved level of the manifest bound to a URL segment.
type RoutingFrame struct {
	Index     int
	Name      string
	HandlerId string
	RoutePath string
	UrlPath   string
	Node      *ManifestNode
}

// Field projects a frame attribute by name: index, name, class, route or url. Unknown names and nil frames yield nil.
func (frame *RoutingFrame) Field(name string) interface{} {
	if frame == nil {
		return nil
	}
	switch name {
	case "index":
		return frame.Index
	case "name":
		return frame.Name
	case "class":
		return frame.HandlerId
	case "route":
		return frame.RoutePath
	case "url":
		return frame.UrlPath
	}
	return nil
}

// Route is the result of binding a Manifest to the segments of a request path.
type Route struct {
	Segments    []string
	Frames      []*RoutingFrame
	MaxIndexMap int
}

// Params returns a copy of the segments in the given scope.
func (route *Route) Params(scope ParamScope) []string {
	var params []string
	switch scope {
	case ScopeMap:
		end := route.MaxIndexMap + 1
		if end > len(route.Segments) {
			end = len(route.Segments)
		}
		params = route.Segments[:end]
	case ScopeApp:
		if route.MaxIndexMap+1 < len(route.Segments) {
			params = route.Segments[route.MaxIndexMap+1:]
		}
	default:
		params = route.Segments
	}
	return append([]string(nil), params...)
}

// Param returns the segment at index within the given scope. Out of range indexes report false.
func (route *Route) Param(index int, scope ParamScope) (string, bool) {
	params := route.Params(scope)
	if index < 0 || index >= len(params) {
		return "", false
	}
	return params[index], true
}

// ExtractSegments splits a request path into its segments after removing basePath. Empty segments are dropped.
func ExtractSegments(path, basePath string) []string {
	basePath = "/" + strings.Trim(basePath, "/")
	if basePath != "/" {
		if path == basePath {
			path = ""
		} else if strings.HasPrefix(path, basePath+"/") {
			path = path[len(basePath):]
		}
	}
	return splitSegments(path)
}

func splitSegments(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Resolve binds the manifest to a list of URL segments. Walking down from the root, a segment that is missing or
// unknown at some depth causes the main entry of that depth to be inserted in front of it. Resolution stops at the
// first node without children. When registry is not nil every handler id on the path must be registered.
func (manifest *Manifest) Resolve(segments []string, registry Registry, baseUrl string) (*Route, error) {
	route := &Route{
		Segments: append([]string(nil), segments...),
	}

	maxIndex, err := route.resolve(0, manifest.root, registry, strings.TrimRight(baseUrl, "/"))
	if err != nil {
		return nil, err
	}
	route.MaxIndexMap = maxIndex

	return route, nil
}

func (route *Route) resolve(depth int, node *ManifestNode, registry Registry, baseUrl string) (int, error) {
	parentPath := ""
	if depth > 0 {
		parentPath = route.Frames[depth-1].RoutePath
	}

	defaultNode := node.Default()
	if defaultNode == nil {
		return 0, configErrorf(parentPath, "no main entry declared")
	}

	if depth >= len(route.Segments) || node.Child(route.Segments[depth]) == nil {
		route.insertSegment(depth, defaultNode.Name)
	}

	child := node.Child(route.Segments[depth])
	routePath := joinRoute(parentPath, child.Name)

	if registry != nil && registry.Get(child.HandlerId) == nil {
		return 0, configErrorf(routePath, "class [%s] has no registered handler factory", child.HandlerId)
	}

	route.Frames = append(route.Frames, &RoutingFrame{
		Index:     depth,
		Name:      child.Name,
		HandlerId: child.HandlerId,
		RoutePath: routePath,
		UrlPath:   baseUrl + "/" + routePath,
		Node:      child,
	})

	if child.HasChildren() {
		return route.resolve(depth+1, child, registry, baseUrl)
	}

	return depth, nil
}

func (route *Route) insertSegment(index int, segment string) {
	route.Segments = append(route.Segments, "")
	copy(route.Segments[index+1:], route.Segments[index:])
	route.Segments[index] = segment
}
