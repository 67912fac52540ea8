package httpserver

import (
	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
)

// Context is the opaque per-request value a Router hands to its bound
// handler: the connection driving the request, the parsed request
// itself, and the resolved configuration.
type Context struct {
	Conn    *engine.Connection
	Request *Request
	Config  config.Config
}

// Handler services one request, returning the Response it built (for
// the caller to inspect Status/keep-alive bookkeeping) and any fatal
// connection-level error encountered while writing it.
type Handler func(ctx *Context, payload any) (*Response, error)

// Router binds one Handler to an opaque payload (conventionally a
// pre-opened web-root directory fd), deliberately foregoing pattern
// matching: dispatch goes to a single static-file handler, so there is
// nothing to route between.
type Router struct {
	handle  Handler
	payload any
}

// NewRouter constructs a Router invoking handle for every dispatched
// request.
func NewRouter(handle Handler) *Router {
	return &Router{handle: handle}
}

// Bind attaches payload, passed to every subsequent Dispatch.
func (r *Router) Bind(payload any) { r.payload = payload }

// Dispatch invokes the bound handler with ctx and the bound payload.
func (r *Router) Dispatch(ctx *Context) (*Response, error) {
	return r.handle(ctx, r.payload)
}
