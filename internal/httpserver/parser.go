package httpserver

import (
	"errors"
	"strconv"
	"strings"

	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
	"github.com/3541/shortcircuit/internal/uri"
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// ParseRequest reads and parses exactly one HTTP request from c's receive
// buffer, growing it (via RecvUntil) as needed. It returns either a fully
// parsed *Request, a *ParseError describing the status to answer with, or
// a transport-level error (EOF, timeout, or anything else Connection.Recv
// can surface) that the caller should treat as fatal to the connection
// without attempting to write a response for states earlier than the
// request line.
func ParseRequest(c *engine.Connection, cfg config.Config) (*Request, error) {
	// The request line's CRLF stays in In: it is the first half of the
	// CRLFCRLF that ends the header block, which is all that follows the
	// line in a request without headers.
	line, err := readDelimited(c, crlf, cfg.HTTPRequestLineMax, StatusURITooLong, true)
	if err != nil {
		return nil, err
	}

	req, deferredMethodErr, perr := parseRequestLine(string(line))
	if perr != nil {
		return nil, perr
	}
	c.State = engine.ConnParsedFirstLine

	if req.Version == Version09 {
		// HTTP/0.9 forbids headers entirely; the request ends at the
		// request line. An unrecognized method has no header phase left
		// to be pre-empted by, so it takes effect immediately.
		if deferredMethodErr != nil {
			return nil, enrich(deferredMethodErr, req)
		}
		req.KeepAlive = false
		req.Headers = Header{}
		return req, nil
	}

	headerBudget := cfg.HTTPRequestLineMax + cfg.HTTPHeaderMax
	block, err := readDelimited(c, crlfcrlf, headerBudget, StatusHeaderFieldsTooLarge, false)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			return nil, enrich(pe, req)
		}
		return nil, err
	}

	if perr := parseHeaderBlock(req, string(block), cfg); perr != nil {
		return nil, enrich(perr, req)
	}
	c.State = engine.ConnParsedHeaders

	// A malformed-but-ASCII or otherwise-unimplemented method is only
	// reported once the headers are known to be well-formed: a header
	// error reflects a request the server cannot safely keep parsing at
	// all, which takes priority over a method it simply doesn't
	// implement.
	if deferredMethodErr != nil {
		return nil, enrich(deferredMethodErr, req)
	}

	return req, nil
}

// enrich records req's version and method, so the caller can render pe's
// error response in the right protocol version and suppress its body
// for a HEAD request, then returns pe for convenience at call sites.
func enrich(pe *ParseError, req *Request) *ParseError {
	pe.Version = req.Version
	pe.Head = req.Method == MethodHead
	return pe
}

// readDelimited accumulates c's receive buffer until delim appears,
// consumes the bytes up to (not including) delim plus, unless keepDelim
// is set, delim itself, and returns the bytes before delim.
// overLimitStatus names the status to report if maxBytes is exhausted
// before delim ever appears.
func readDelimited(c *engine.Connection, delim []byte, maxBytes int, overLimitStatus Status, keepDelim bool) ([]byte, error) {
	_, err := c.RecvUntil(delim, maxBytes)
	if err != nil {
		if errors.Is(err, engine.ErrBufferFull) {
			return nil, newParseError(overLimitStatus)
		}
		return nil, err
	}
	idx := c.In.Memmem(delim)
	out := make([]byte, idx)
	copy(out, c.In.Readable()[:idx])
	n := idx + len(delim)
	if keepDelim {
		n = idx
	}
	c.In.Consume(n)
	return out, nil
}

// parseRequestLine parses "METHOD target VERSION" (or, for HTTP/0.9,
// "METHOD target" with no version token).
//
// An unrecognized-but-well-formed method does not fail outright here: it
// is returned as deferredErr so the caller can let a subsequent header
// error (which reflects a request malformed enough that the server
// cannot trust the rest of the stream) take priority over a plain
// not-implemented method.
func parseRequestLine(line string) (req *Request, deferredErr *ParseError, hardErr *ParseError) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil, nil, newParseError(StatusBadRequest)
	}

	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return nil, nil, newParseError(StatusBadRequest)
	}

	methodTok, targetTok := fields[0], fields[1]
	method, recognized := parseMethod(methodTok)
	if !recognized {
		if !isASCIIToken(methodTok) {
			return nil, nil, newParseError(StatusBadRequest)
		}
		deferredErr = newParseError(StatusNotImplemented)
	}

	versionTok := ""
	if len(fields) == 3 {
		versionTok = fields[2]
	}
	version, ok := parseVersion(versionTok, method)
	if !ok {
		if versionTok == "" {
			// Two-field request line: legal only as HTTP/0.9.
			version = Version09
		} else {
			return nil, nil, newParseError(StatusBadRequest)
		}
	}
	if version == VersionUnknown {
		return nil, nil, newParseError(StatusHTTPVersionNotSupported)
	}

	parsed, err := uri.Parse(targetTok)
	if err != nil {
		if errors.Is(err, uri.ErrTooLong) {
			return nil, nil, newParseError(StatusURITooLong)
		}
		return nil, nil, newParseError(StatusBadRequest)
	}

	req = &Request{
		Method:  method,
		Target:  targetTok,
		Path:    parsed.Path,
		Query:   parsed.Query,
		Version: version,
	}
	return req, deferredErr, nil
}

// parseVersion matches the request-line's version token, enforcing that
// HTCPCP/1.0 is only valid alongside BREW.
func parseVersion(tok string, method Method) (Version, bool) {
	switch tok {
	case "HTTP/1.0":
		return Version10, true
	case "HTTP/1.1":
		return Version11, true
	case "HTCPCP/1.0":
		if method != MethodBrew {
			return VersionUnknown, false
		}
		return VersionHTCPCP10, true
	case "":
		return VersionUnknown, false
	default:
		if strings.HasPrefix(tok, "HTTP/") {
			return VersionUnknown, true // recognized-but-unsupported: 505, not 400
		}
		return VersionUnknown, false // malformed: 400
	}
}

// parseHeaderBlock parses the CRLF-separated header lines in block
// (already stripped of the terminating CRLFCRLF, and starting with the
// request line's CRLF when any header is present) into req.Headers, then
// interprets Connection, Host, Transfer-Encoding, and Content-Length.
func parseHeaderBlock(req *Request, block string, cfg config.Config) *ParseError {
	req.Headers = Header{}
	block = strings.TrimSuffix(block, "\r\n")
	if block != "" {
		for _, line := range strings.Split(block, "\r\n") {
			line = strings.TrimSuffix(line, "\r")
			if line == "" {
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return newParseError(StatusBadRequest)
			}
			req.Headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	// Connection.
	defaultKeepAlive := req.Version == Version11
	if v, ok := req.Headers.Get("connection"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "keep-alive":
			req.KeepAlive = true
		case "close":
			req.KeepAlive = false
		default:
			return newParseError(StatusBadRequest)
		}
	} else {
		req.KeepAlive = defaultKeepAlive
	}

	// Host.
	host, hasHost := req.Headers.Get("host")
	if strings.Contains(host, ",") {
		return newParseError(StatusBadRequest)
	}
	if req.Version == Version11 && !hasHost {
		return newParseError(StatusBadRequest)
	}
	req.Host = host

	// Transfer-Encoding.
	if te, ok := req.Headers.Get("transfer-encoding"); ok {
		tokens := strings.Split(te, ",")
		sawIdentity := false
		sawOther := false
		for _, tok := range tokens {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "identity":
				sawIdentity = true
			case "chunked":
				req.TransferEncoding |= TransferChunked
			default:
				sawOther = true
			}
		}
		if sawOther && req.TransferEncoding&TransferChunked == 0 {
			return newParseError(StatusBadRequest)
		}
		if req.TransferEncoding&TransferChunked != 0 {
			return newParseError(StatusNotImplemented)
		}
		_ = sawIdentity
	}

	// Content-Length (ignored entirely when a non-identity encoding is
	// present, which given the 501 above means this only ever runs for
	// identity transfer).
	if cl, ok := req.Headers.Get("content-length"); ok {
		if strings.Contains(cl, ",") {
			return newParseError(StatusBadRequest)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return newParseError(StatusBadRequest)
		}
		if n > int64(cfg.HTTPRequestContentMax) {
			return newParseError(StatusPayloadTooLarge)
		}
		req.ContentLength = n
	}

	return nil
}

// isASCIIToken reports whether tok is non-empty and entirely 7-bit ASCII,
// the boundary the parser uses to distinguish an unrecognized-but-well-
// formed method (501) from outright garbage (400).
func isASCIIToken(tok string) bool {
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] >= 0x80 {
			return false
		}
	}
	return true
}
