/*
 * Copyright 2025 TAOS Data, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"
)

// handleTable maps opaque addresses to driver objects. Every handle is a
// one-byte C allocation whose address is the identifier handed to the foreign
// caller; the caller is the sole lifetime authority. There is no reference
// counting and no liveness tracking: releasing twice or passing a foreign
// address is undefined behavior, exactly as in the native client ABI.
type handleTable struct {
	mu      sync.Mutex
	entries map[unsafe.Pointer]any
}

var handles = handleTable{entries: map[unsafe.Pointer]any{}}

// put registers an object and returns its opaque address.
func (t *handleTable) put(v any) unsafe.Pointer {
	p := C.malloc(1)
	t.mu.Lock()
	t.entries[p] = v
	t.mu.Unlock()
	return p
}

// get looks an address up. A nil or unknown address yields nil, never an
// error: accessors on absent handles answer with inert defaults.
func (t *handleTable) get(p unsafe.Pointer) any {
	if p == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[p]
}

// take removes an address and returns its object.
func (t *handleTable) take(p unsafe.Pointer) any {
	if p == nil {
		return nil
	}
	t.mu.Lock()
	v, ok := t.entries[p]
	delete(t.entries, p)
	t.mu.Unlock()
	if ok {
		C.free(p)
	}
	return v
}
