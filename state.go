// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

const (
	// parser state: RequestLine
	stateClose int8 = iota
	stateMethodBefore
	stateMethod

	statePathBefore
	statePath
	stateProtoBefore
	stateProto
	stateProtoLF

	// parser state: Header
	stateHeaderKeyBefore
	stateHeaderKey
	stateHeaderValueBefore
	stateHeaderValue
	stateHeaderValueLF
	stateHeaderOverLF
)

// Connection state bits. The three read/processed conditions are not
// mutually exclusive; waitingFirstData is a latch cleared by the first
// byte of each request.
const (
	stateReadHeaders uint8 = 1 << iota
	stateReadData
	stateProcessingRequest
	stateRequestProcessed
	stateWaitingFirstData
)

const stateInitial = stateReadHeaders | stateWaitingFirstData
