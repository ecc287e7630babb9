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

// Cursor walks the frames of a Route one at a time. Each controller that delegates to a child calls Next once, so
// nested handlers consume the frames in depth order without knowing about each other.
type Cursor struct {
	frames []*RoutingFrame
	index  int
}

// NewCursor creates a Cursor positioned before the first frame.
func NewCursor(frames []*RoutingFrame) *Cursor {
	return &Cursor{frames: frames}
}

// Next returns the frame at the cursor and advances past it. Once the frames are exhausted Next keeps returning nil
// and the cursor stays put.
func (cursor *Cursor) Next() *RoutingFrame {
	if cursor.index >= len(cursor.frames) {
		return nil
	}
	frame := cursor.frames[cursor.index]
	cursor.index++
	return frame
}

// Current returns the frame last returned by Next, nil if Next was never called.
func (cursor *Cursor) Current() *RoutingFrame {
	if cursor.index < 1 || cursor.index > len(cursor.frames) {
		return nil
	}
	return cursor.frames[cursor.index-1]
}

// NextField is Next projected through RoutingFrame.Field.
func (cursor *Cursor) NextField(name string) interface{} {
	return cursor.Next().Field(name)
}

// CurrentField is Current projected through RoutingFrame.Field.
func (cursor *Cursor) CurrentField(name string) interface{} {
	return cursor.Current().Field(name)
}

// Index is the number of frames consumed so far.
func (cursor *Cursor) Index() int {
	return cursor.index
}

// Len is the number of frames in the route.
func (cursor *Cursor) Len() int {
	return len(cursor.frames)
}
