/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package match implements SCXML event descriptor matching.
//
// A transition's event attribute is a space-separated list of
// descriptors.  A descriptor matches an event name if it is "*" or if
// it is a dot-separated prefix of the name on token boundaries:
// "error" matches "error.execution" but not "errors".  A trailing
// "." or ".*" on a descriptor is ignored, so "error.*" and "error."
// behave like "error".
//
// See https://www.w3.org/TR/scxml/#EventDescriptors
package match

import (
	"strings"
)

// Match reports whether the event name matches any descriptor in the
// given space-separated list.
func Match(eventName, descriptors string) bool {
	if eventName == "" {
		return false
	}
	for _, d := range strings.Fields(descriptors) {
		if One(eventName, d) {
			return true
		}
	}
	return false
}

// One reports whether the event name matches a single descriptor.
func One(eventName, descriptor string) bool {
	if descriptor == "*" {
		return true
	}

	descriptor = Canonical(descriptor)
	if descriptor == "" {
		return false
	}

	if !strings.HasPrefix(eventName, descriptor) {
		return false
	}
	if len(eventName) == len(descriptor) {
		return true
	}

	// The prefix must end on a token boundary.
	return eventName[len(descriptor)] == '.'
}

// Canonical strips the wildcard tail ("." or ".*", possibly
// repeated) from a descriptor.
func Canonical(descriptor string) string {
	for {
		switch {
		case strings.HasSuffix(descriptor, ".*"):
			descriptor = descriptor[:len(descriptor)-2]
		case strings.HasSuffix(descriptor, "."):
			descriptor = descriptor[:len(descriptor)-1]
		default:
			return descriptor
		}
	}
}
