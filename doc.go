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

/*
Package xdispatch provides a manifest driven dispatcher that maps URL path segments onto a tree of handlers and
exposes API methods through a single, batched or long-polling request protocol.

Manifests

A Manifest is a tree of named nodes loaded from JSON. Each node names a handler id and may declare children under
"sub". Exactly one child of every node with children is marked "main"; it is used whenever the URL omits or does not
match a segment at that depth. A request for /foo where foo is not a top level key is read as /<main>/foo, so foo
becomes a segment for the next level instead of producing a 404.

	{
		"api": {"class": "api.Controller", "main": true, "controller": true, "sub": {
			"users": {"class": "api.Users", "main": true},
			"posts": {"class": "api.Posts"}
		}}
	}

Handler ids are resolved through a Registry of HandlerFactory instances. Manifest.Validate checks every id against
the registry so unknown handlers fail at startup instead of on first use.

Routes and cursors

Manifest.Resolve binds the manifest to the segments of a request and produces a Route: one RoutingFrame per depth.
The frames are consumed through a Cursor that lives in the RequestContext of the request. A controller calls
RequestContext.NextHandler to instantiate the handler of the following frame; that handler may do the same. No state
is shared between requests.

WebService

WebService is the handler that answers API calls. Depending on its DispatchConfig and the request payload it runs a
RESTful call (the HTTP verb is the method), a common call (the "method" parameter names the method), a multi request
(a JSON object of independent calls in "params") or a long-polling request (a multi request re-run until one of the
calls returns data). Methods are exposed through an explicit MethodSet. Every result goes through BuildResult and is
rendered by a View.

Serving

Application is the http.Handler for a single manifest under a base path. Instance and Server assemble applications,
bind points and TLS identities from a configuration map, usually read from YAML.
*/
package xdispatch
