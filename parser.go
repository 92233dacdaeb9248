// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/corvidlabs/ashttp/mempool"
)

type parseStatus int8

const (
	// parseIncomplete means more bytes are needed; all input was consumed.
	parseIncomplete parseStatus = iota
	// parseOK means request line and headers are complete.
	parseOK
	// parseMalformed means the input is not a valid HTTP/1.x request head.
	parseMalformed
)

// RequestParser is a restartable incremental consumer of request-line
// and header bytes. It may be fed any number of fragments; partial
// tokens are carried across calls. Body bytes are not its business.
type RequestParser struct {
	state int8

	readLimit int
	total     int

	token     []byte
	headerKey string
	pending   string
	err       error

	headerExists bool
}

// NewRequestParser creates a parser; readLimit bounds the total
// request-line+header byte count, 0 means no bound.
func NewRequestParser(readLimit int) *RequestParser {
	return &RequestParser{
		state:     stateMethodBefore,
		readLimit: readLimit,
		token:     mempool.Malloc(64)[0:0],
	}
}

// Err returns the reason for the last malformed result.
func (p *RequestParser) Err() error {
	return p.err
}

// Reset prepares the parser for the next request on the same connection.
func (p *RequestParser) Reset() {
	p.state = stateMethodBefore
	p.total = 0
	p.token = p.token[0:0]
	p.headerKey = ""
	p.pending = ""
	p.err = nil
	p.headerExists = false
}

// Release returns the parser's internal buffer to the pool.
func (p *RequestParser) Release() {
	if p.token != nil {
		mempool.Free(p.token)
		p.token = nil
	}
}

func (p *RequestParser) fail(err error) parseStatus {
	p.state = stateClose
	p.err = err
	return parseMalformed
}

// Parse feeds data into the parser, filling req as fields complete.
// It returns the parse status and the number of bytes consumed:
// all of data when incomplete, the head bytes within data when ok, and
// the bytes before the offending one when malformed.
func (p *RequestParser) Parse(req *Request, data []byte) (parseStatus, int) {
	if p.state == stateClose {
		return parseMalformed, 0
	}

	var c byte
	for i := 0; i < len(data); i++ {
		c = data[i]
		p.total++
		if p.readLimit > 0 && p.total > p.readLimit {
			return p.fail(ErrTooLong), i
		}
		switch p.state {
		case stateMethodBefore:
			if !isValidMethodChar(c) {
				return p.fail(ErrInvalidMethod), i
			}
			p.token = mempool.Append(p.token, c)
			p.state = stateMethod
		case stateMethod:
			if c == ' ' {
				method := strings.ToUpper(string(p.token))
				if !isValidMethod(method) {
					return p.fail(ErrInvalidMethod), i
				}
				req.Method = method
				p.token = p.token[0:0]
				p.state = statePathBefore
				continue
			}
			if !isAlpha(c) {
				return p.fail(ErrInvalidMethod), i
			}
			p.token = mempool.Append(p.token, c)
		case statePathBefore:
			switch c {
			case '/', '*':
				p.token = mempool.Append(p.token, c)
				p.state = statePath
			case ' ':
			default:
				return p.fail(ErrInvalidRequestURI), i
			}
		case statePath:
			switch c {
			case ' ':
				req.URL = string(p.token)
				p.token = p.token[0:0]
				p.state = stateProtoBefore
			case '\r', '\n':
				return p.fail(ErrInvalidRequestURI), i
			default:
				p.token = mempool.Append(p.token, c)
			}
		case stateProtoBefore:
			switch c {
			case ' ':
			case '\r', '\n':
				return p.fail(ErrInvalidHTTPVersion), i
			default:
				p.token = mempool.Append(p.token, c)
				p.state = stateProto
			}
		case stateProto:
			switch c {
			case ' ':
				if p.pending == "" {
					p.pending = string(p.token)
				}
			case '\r':
				proto := p.pending
				if proto == "" {
					proto = string(p.token)
				}
				if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
					return p.fail(ErrInvalidHTTPVersion), i
				}
				req.Proto = proto
				p.token = p.token[0:0]
				p.pending = ""
				p.state = stateProtoLF
			case '\n':
				return p.fail(ErrInvalidHTTPVersion), i
			default:
				p.token = mempool.Append(p.token, c)
			}
		case stateProtoLF:
			if c != '\n' {
				return p.fail(ErrLFExpected), i
			}
			p.state = stateHeaderKeyBefore
		case stateHeaderKeyBefore:
			switch c {
			case ' ', '\t':
				if !p.headerExists {
					return p.fail(ErrInvalidCharInHeader), i
				}
			case '\r':
				p.state = stateHeaderOverLF
			case '\n':
				return p.fail(ErrInvalidCharInHeader), i
			default:
				if !isToken(c) {
					return p.fail(ErrInvalidCharInHeader), i
				}
				p.token = mempool.Append(p.token, c)
				p.state = stateHeaderKey
				p.headerExists = true
			}
		case stateHeaderKey:
			switch c {
			case ' ':
				if p.headerKey == "" {
					p.headerKey = http.CanonicalHeaderKey(string(p.token))
				}
			case ':':
				if p.headerKey == "" {
					p.headerKey = http.CanonicalHeaderKey(string(p.token))
				}
				p.token = p.token[0:0]
				p.state = stateHeaderValueBefore
			case '\r', '\n':
				return p.fail(ErrInvalidCharInHeader), i
			default:
				if !isToken(c) || p.headerKey != "" {
					return p.fail(ErrInvalidCharInHeader), i
				}
				p.token = mempool.Append(p.token, c)
			}
		case stateHeaderValueBefore:
			switch c {
			case ' ', '\t':
			case '\r':
				req.addHeader(p.headerKey, "")
				p.headerKey = ""
				p.state = stateHeaderValueLF
			case '\n':
				return p.fail(ErrInvalidCharInHeader), i
			default:
				p.token = mempool.Append(p.token, c)
				p.state = stateHeaderValue
			}
		case stateHeaderValue:
			switch c {
			case '\r':
				value := strings.TrimRight(string(p.token), " \t")
				req.addHeader(p.headerKey, value)
				p.headerKey = ""
				p.token = p.token[0:0]
				p.state = stateHeaderValueLF
			case '\n':
				return p.fail(ErrInvalidCharInHeader), i
			default:
				p.token = mempool.Append(p.token, c)
			}
		case stateHeaderValueLF:
			if c != '\n' {
				return p.fail(ErrLFExpected), i
			}
			p.state = stateHeaderKeyBefore
		case stateHeaderOverLF:
			if c != '\n' {
				return p.fail(ErrLFExpected), i
			}
			if err := p.parseContentLength(req); err != nil {
				return p.fail(err), i
			}
			return parseOK, i + 1
		default:
			return p.fail(ErrInvalidCharInHeader), i
		}
	}

	return parseIncomplete, len(data)
}

func (p *RequestParser) parseContentLength(req *Request) error {
	cl := req.Header.Get(contentLengthHeader)
	if cl == "" {
		req.contentLength = 0
		return nil
	}
	cl = strings.TrimRight(cl, " ")
	l, err := strconv.ParseInt(cl, 10, 63)
	if err != nil || l < 0 {
		return ErrInvalidContentLength
	}
	req.contentLength = l
	return nil
}
