// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"errors"
)

var (
	// ErrInvalidMethod .
	ErrInvalidMethod = errors.New("invalid HTTP method")

	// ErrInvalidRequestURI .
	ErrInvalidRequestURI = errors.New("invalid URL")

	// ErrInvalidHTTPVersion .
	ErrInvalidHTTPVersion = errors.New("invalid HTTP version")

	// ErrCRExpected .
	ErrCRExpected = errors.New("CR character expected")

	// ErrLFExpected .
	ErrLFExpected = errors.New("LF character expected")

	// ErrInvalidCharInHeader .
	ErrInvalidCharInHeader = errors.New("invalid character in header")

	// ErrInvalidContentLength .
	ErrInvalidContentLength = errors.New("invalid ContentLength")

	// ErrTooLong .
	ErrTooLong = errors.New("invalid http message: too long")
)

var (
	// ErrConnectionClosed .
	ErrConnectionClosed = errors.New("connection closed")

	// ErrServiceOverload .
	ErrServiceOverload = errors.New("service overload")

	// ErrEngineStopped .
	ErrEngineStopped = errors.New("engine stopped")

	// ErrHandlerFault reports a handler callback that failed under safe mode.
	ErrHandlerFault = errors.New("handler fault")
)
