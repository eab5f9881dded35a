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

package taosws

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Error codes assigned by the driver itself. Errors reported by the server
// keep the server's code untouched.
const (
	// CodeFailed is the catch-all code for driver-side failures.
	CodeFailed int32 = 0xFFFF
	// CodeInvalidDsn marks a malformed descriptor or an unsupported
	// driver/protocol pair.
	CodeInvalidDsn int32 = 0xFFFE
	// CodeEncoding marks a string from a foreign caller that is not valid
	// UTF-8.
	CodeEncoding int32 = 0xFFFD
)

// Error is the unified error type of the driver. Every failure, whether it
// originates in descriptor resolution, in the websocket transport, or on the
// server, is carried as an *Error with a numeric code and a message.
type Error struct {
	// Code is the numeric error code. Server-reported errors keep the code
	// reported by the server.
	Code int32
	// Message is the human-readable error text. For server-reported errors
	// this is the server text verbatim.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[0x%04X] %s", e.Code, e.Message)
}

// Errno returns the numeric code of the error.
func (e *Error) Errno() int32 {
	return e.Code
}

// ErrStr returns the message of the error.
func (e *Error) ErrStr() string {
	return e.Message
}

func invalidDsnError(dsn string) *Error {
	return &Error{Code: CodeInvalidDsn, Message: fmt.Sprintf("invalid dsn: %s", dsn)}
}

func encodingError(s string) *Error {
	return &Error{Code: CodeEncoding, Message: fmt.Sprintf("input is not valid utf-8: %q", s)}
}

// wrapError converts an arbitrary error into an *Error. An error that already
// is an *Error is returned unchanged so server codes survive rewrapping.
func wrapError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeFailed, Message: err.Error()}
}

// checkUTF8 validates a string crossing the foreign boundary.
func checkUTF8(s string) *Error {
	if !utf8.ValidString(s) {
		return encodingError(s)
	}
	return nil
}
