// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net/http"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// Router maps method+path to handler factories on top of an
// httprouter radix tree.
type Router struct {
	mux    sync.RWMutex
	router *httprouter.Router
}

func newRouter() *Router {
	return &Router{router: httprouter.New()}
}

// routeCapture rides through httprouter's Handle signature to carry
// the matched factory back out of a Lookup. Its ResponseWriter side is
// never touched.
type routeCapture struct {
	http.ResponseWriter
	factory HandlerFactory
	params  httprouter.Params
}

// Handle registers a factory for a method and httprouter-style path
// pattern.
func (rt *Router) Handle(method, path string, factory HandlerFactory) {
	rt.mux.Lock()
	defer rt.mux.Unlock()
	rt.router.Handle(method, path, func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		rc := w.(*routeCapture)
		rc.factory = factory
		rc.params = ps
	})
}

// Lookup resolves a request line to a registered factory, nil when no
// route matches. The raw URL's query string is ignored for matching.
func (rt *Router) Lookup(method, rawurl string) (HandlerFactory, httprouter.Params) {
	path := rawurl
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	rt.mux.RLock()
	h, ps, _ := rt.router.Lookup(method, path)
	rt.mux.RUnlock()
	if h == nil {
		return nil, nil
	}
	rc := &routeCapture{}
	h(rc, nil, ps)
	return rc.factory, rc.params
}
