// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"runtime"
	"unsafe"

	"github.com/corvidlabs/ashttp/logging"
)

// safeGo runs f on its own goroutine, recovering and logging panics.
func safeGo(f func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]
				logging.Error("goroutine failed: %v\n%v\n", err, *(*string)(unsafe.Pointer(&buf)))
			}
		}()
		f()
	}()
}
