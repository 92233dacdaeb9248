// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"sync/atomic"
	"time"

	"github.com/corvidlabs/ashttp/logging"
)

// Synthetic access-log status codes for requests that never produced a
// normal response.
const (
	statusClientGone    = 499
	statusDestructAbort = 597
	statusHandlerFault  = 598
	statusErrorClose    = 599
)

func (c *Connection) accessStatusCode() int {
	return int(atomic.LoadInt32(&c.accessStatus))
}

func (c *Connection) storeAccessStatus(code int) {
	atomic.StoreInt32(&c.accessStatus, int32(code))
}

// printAccessLog emits the per-request access line. It is a no-op
// before the first byte of a request arrives, and at most one line is
// emitted per request: the latch resets in processNext.
func (c *Connection) printAccessLog() {
	if c.state&stateWaitingFirstData != 0 {
		return
	}
	if c.accessLogged {
		return
	}
	c.accessLogged = true

	var delta int64
	if !c.accessStart.IsZero() {
		delta = time.Since(c.accessStart).Microseconds()
	}
	method := c.accessMethod
	if method == "" {
		method = "-"
	}
	url := c.accessURL
	if url == "" {
		url = "-"
	}
	logging.Info("access_log_entry: method: %v, url: %v, local: %v, remote: %v, status: %v, received: %v, sent: %v, time: %v us",
		method, url, c.accessLocal, c.accessRemote, c.accessStatusCode(), c.accessReceived, c.accessSent, delta)
}

func (c *Connection) resetAccessLog() {
	c.accessMethod = ""
	c.accessURL = ""
	c.accessStart = time.Time{}
	c.storeAccessStatus(0)
	c.accessReceived = 0
	c.accessSent = 0
	c.accessLogged = false
}
