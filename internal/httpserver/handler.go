package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
	"github.com/3541/shortcircuit/internal/mime"
)

// ServeFile is the static-file Handler bound into a Router with the
// pre-opened web-root directory fd as payload: open the target under
// the web root, stat it, and stream it, with the directory to
// index.html fallback and the HTCPCP BREW teapot response.
func ServeFile(ctx *Context, payload any) (*Response, error) {
	req := ctx.Request
	c := ctx.Conn
	cfg := ctx.Config

	if req.Method == MethodBrew {
		c.State = engine.ConnResponding
		resp := errorResponse(StatusTeapot, req.Version, req.KeepAlive, false, cfg.HTTPErrorBodyMax)
		return resp, resp.Write(c, cfg)
	}

	webRootFD, _ := payload.(int)

	rel := strings.TrimPrefix(req.Path, "/")
	if rel == "" {
		rel = "."
	}

	c.State = engine.ConnOpeningFile
	openRes := c.OpenUnder(webRootFD, rel)
	if openRes.Err != nil {
		return writeNotFoundOr500(c, req, cfg, openRes.Err)
	}
	fd := openRes.FD

	statRes := c.StatFD(fd)
	if statRes.Err != nil {
		c.CloseExtraFD(fd)
		return writeStatus(c, req, cfg, StatusInternalServerError)
	}
	st := statRes.Stat
	servedName := rel

	if st.IsDir {
		idxRes := c.OpenUnder(fd, cfg.IndexFilename)
		c.CloseExtraFD(fd)
		if idxRes.Err != nil {
			return writeStatus(c, req, cfg, StatusNotFound)
		}
		fd = idxRes.FD
		statRes = c.StatFD(fd)
		if statRes.Err != nil {
			c.CloseExtraFD(fd)
			return writeStatus(c, req, cfg, StatusInternalServerError)
		}
		st = statRes.Stat
		servedName = cfg.IndexFilename
		if st.IsDir {
			// Directory listings are a non-goal; an index that is
			// itself a directory is treated as absent.
			c.CloseExtraFD(fd)
			return writeStatus(c, req, cfg, StatusNotFound)
		}
	}

	if !isRegularFile(st.Mode) {
		c.CloseExtraFD(fd)
		return writeStatus(c, req, cfg, StatusNotFound)
	}

	resp := NewResponse(StatusOK, req.Version, req.KeepAlive)
	resp.SetFileBody(fd, st.Size, mime.TypeForPath(servedName))
	resp.SetHeader("ETag", quoted(etagFor(st.Inode, st.Mtime, st.Size)))
	resp.SetHeader("Last-Modified", globalLastModifiedCache.get(st.Mtime))
	if req.Method == MethodHead {
		resp.SuppressBody()
	}

	c.State = engine.ConnResponding
	err := resp.Write(c, cfg)
	c.CloseExtraFD(fd)
	return resp, err
}

func quoted(s string) string { return `"` + s + `"` }

func isRegularFile(mode uint32) bool {
	return mode&unix.S_IFMT == unix.S_IFREG
}

func writeNotFoundOr500(c *engine.Connection, req *Request, cfg config.Config, openErr error) (*Response, error) {
	status := StatusInternalServerError
	if errors.Is(openErr, engine.ErrFileNotFound) {
		status = StatusNotFound
	}
	return writeStatus(c, req, cfg, status)
}

func writeStatus(c *engine.Connection, req *Request, cfg config.Config, status Status) (*Response, error) {
	c.State = engine.ConnResponding
	resp := errorResponse(status, req.Version, req.KeepAlive, req.Method == MethodHead, cfg.HTTPErrorBodyMax)
	return resp, resp.Write(c, cfg)
}

// Serve drives one connection's full request/response keep-alive loop:
// parse a request, dispatch it through router, and repeat until the
// negotiated keep-alive state says otherwise, the peer disconnects, the
// idle timer fires (emitting exactly one synthetic 408), or an I/O error
// forces the connection closed. It never returns an error the caller
// needs to act on beyond closing c; Connection.Close is the caller's
// responsibility (conventionally via defer, as Listener.onAccept does).
func Serve(c *engine.Connection, cfg config.Config, router *Router) {
	for {
		req, err := ParseRequest(c, cfg)
		if err != nil {
			serveParseError(c, cfg, err)
			return
		}

		start := time.Now()
		ctx := &Context{Conn: c, Request: req, Config: cfg}
		_, werr := router.Dispatch(ctx)
		if werr != nil {
			return
		}
		c.Metrics().RecordRequest(time.Since(start))

		if !req.KeepAlive {
			return
		}
		// Any identity-encoded body the handler left unread would
		// otherwise be parsed as the start of the next request.
		if err := drainBody(c, req.ContentLength); err != nil {
			return
		}
		// Reset collapses only when empty, so pipelined bytes already
		// received for the next request survive.
		c.In.Reset()
		c.Out.Reset()
		c.State = engine.ConnInit
	}
}

// drainBody consumes n body bytes from c's receive buffer, receiving
// more from the socket as needed.
func drainBody(c *engine.Connection, n int64) error {
	for n > 0 {
		if got := int64(c.In.Len()); got > 0 {
			take := got
			if take > n {
				take = n
			}
			c.In.Consume(int(take))
			n -= take
			continue
		}
		if err := c.In.Reserve(512); err != nil {
			return err
		}
		res := c.Recv(c.In.WritePtr())
		if res.Err != nil {
			return res.Err
		}
		if res.EOF {
			return engine.ErrEOF
		}
		c.In.Produced(res.N)
	}
	return nil
}

// serveParseError answers a failed parse with the status it carries (a
// protocol violation) or, for a timed-out recv, the synthetic 408 the
// idle timer demands. Any other transport error (EOF, a closed peer)
// ends the connection without a response: there is nothing coherent to
// answer with.
func serveParseError(c *engine.Connection, cfg config.Config, err error) {
	var pe *ParseError
	if errors.As(err, &pe) {
		version := pe.Version
		if version == VersionUnknown {
			version = Version11
		}
		c.State = engine.ConnResponding
		resp := errorResponse(pe.Status, version, false, pe.Head, cfg.HTTPErrorBodyMax)
		_ = resp.Write(c, cfg)
		return
	}
	if errors.Is(err, engine.ErrTimeout) {
		c.State = engine.ConnResponding
		resp := errorResponse(StatusRequestTimeout, Version11, false, false, cfg.HTTPErrorBodyMax)
		_ = resp.Write(c, cfg)
		return
	}
	if engine.IsFatal(err) {
		// An errno outside the taxonomy is a programmer or kernel bug,
		// not a client we can answer.
		panic(fmt.Sprintf("httpserver: unexpected I/O error: %v", err))
	}
	// engine.ErrEOF: the peer went away; close quietly.
}
