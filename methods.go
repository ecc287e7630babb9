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
	"strings"
	"unicode"
	"unicode/utf8"
)

// Params is the decoded payload of a request or of a single batch entry.
type Params map[string]interface{}

// String returns the value of key as a string, "" when absent.
func (params Params) String(key string) string {
	switch val := params[key].(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// Has reports whether key is present.
func (params Params) Has(key string) bool {
	_, ok := params[key]
	return ok
}

// Truthy reports whether key is present with a value that is not empty, zero or "false". A key that is present with
// an empty value, e.g. "?multi_request=", is false.
func (params Params) Truthy(key string) bool {
	val, ok := params[key]
	if !ok {
		return false
	}
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	switch strings.ToLower(strings.TrimSpace(params.String(key))) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

// Method is an invocable API method. data is the payload of the call, prior holds the results of earlier entries of
// the same batch (nil outside batches) and controller is the dispatching WebService when it acts as a controller.
type Method func(data Params, prior *Results, controller *WebService) (interface{}, error)

// Api is implemented by handlers that expose methods to a WebService.
type Api interface {
	Methods() *MethodSet
}

type methodEntry struct {
	method    Method
	inherited bool
}

// MethodSet is the explicit list of methods an Api exposes. Only registered methods can be dispatched to.
type MethodSet struct {
	methods map[string]methodEntry
}

// NewMethodSet creates an empty MethodSet
func NewMethodSet() *MethodSet {
	return &MethodSet{
		methods: map[string]methodEntry{},
	}
}

// Add exposes method under name. A later Add with the same name replaces the earlier one.
func (set *MethodSet) Add(name string, method Method) *MethodSet {
	set.methods[name] = methodEntry{method: method}
	return set
}

// Inherit copies the methods of a parent set that are not already declared. They are only invocable by a
// WebService that allows inherited methods.
func (set *MethodSet) Inherit(parent *MethodSet) *MethodSet {
	if parent == nil {
		return set
	}
	for name, entry := range parent.methods {
		if _, ok := set.methods[name]; !ok {
			set.methods[name] = methodEntry{method: entry.method, inherited: true}
		}
	}
	return set
}

// Names returns the registered method names.
func (set *MethodSet) Names() []string {
	var names []string
	for name := range set.methods {
		names = append(names, name)
	}
	return names
}

// Lookup returns the method registered as name if it may be dispatched to: it is registered, is not a "__" name,
// does not shadow a WebService method and is either declared on the set itself or inheritedAllowed is true.
func (set *MethodSet) Lookup(name string, inheritedAllowed bool) (Method, bool) {
	if set == nil || name == "" || strings.HasPrefix(name, "__") {
		return nil, false
	}
	if _, reserved := webServiceMethods[name]; reserved {
		return nil, false
	}

	entry, ok := set.methods[name]
	if !ok || entry.method == nil {
		return nil, false
	}
	if entry.inherited && !inheritedAllowed {
		return nil, false
	}
	return entry.method, true
}

// ActionToMethod converts a snake_case or space separated action to lowerCamelCase, e.g. cadastrar_usuario becomes
// cadastrarUsuario. Letters after the first one of each word are left as they are.
func ActionToMethod(action string) string {
	words := strings.FieldsFunc(strings.TrimSpace(action), func(r rune) bool {
		return r == '_' || unicode.IsSpace(r)
	})

	var builder strings.Builder
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		if i == 0 {
			builder.WriteRune(unicode.ToLower(first))
		} else {
			builder.WriteRune(unicode.ToUpper(first))
		}
		builder.WriteString(word[size:])
	}

	if strings.HasPrefix(action, "__") {
		return "__" + builder.String()
	}
	return builder.String()
}
