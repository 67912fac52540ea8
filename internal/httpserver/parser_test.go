//go:build linux

package httpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
)

type parseOutcome struct {
	req *Request
	err error
}

// parseOne feeds raw to a fresh connection and runs ParseRequest against
// it under a real scheduler.
func parseOne(t *testing.T, raw string) parseOutcome {
	t.Helper()
	res := runScheduler(t, func(sched *engine.Scheduler, tk *engine.Task) any {
		conn, peer := socketpairConn(t, sched, tk, time.Minute)
		writeAll(t, peer, []byte(raw))
		req, err := ParseRequest(conn, config.Default())
		conn.Close()
		return parseOutcome{req, err}
	})
	out, ok := res.(parseOutcome)
	require.True(t, ok)
	return out
}

func parseStatus(t *testing.T, raw string) Status {
	t.Helper()
	out := parseOne(t, raw)
	require.Error(t, out.err)
	var pe *ParseError
	require.ErrorAs(t, out.err, &pe)
	return pe.Status
}

func TestParseSimpleGet(t *testing.T) {
	out := parseOne(t, "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, out.err)
	req := out.req

	assert.Equal(t, MethodGet, req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, Version11, req.Version)
	assert.Equal(t, "x", req.Host)
	assert.True(t, req.KeepAlive)
	assert.Equal(t, int64(0), req.ContentLength)
}

func TestParseHeadRequest(t *testing.T) {
	out := parseOne(t, "HEAD / HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, MethodHead, out.req.Method)
}

func TestParseMethodCaseInsensitive(t *testing.T) {
	out := parseOne(t, "get / HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, MethodGet, out.req.Method)
}

func TestParseBrewHTCPCP(t *testing.T) {
	out := parseOne(t, "BREW / HTCPCP/1.0\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, MethodBrew, out.req.Method)
	assert.Equal(t, VersionHTCPCP10, out.req.Version)
}

func TestParseHTCPCPRequiresBrew(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTCPCP/1.0\r\nHost: x\r\n\r\n"))
}

func TestParseHTTP10DefaultsToClose(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.0\r\n\r\n")
	require.NoError(t, out.err)
	assert.False(t, out.req.KeepAlive)
}

func TestParseHTTP10RespectsClientKeepAlive(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	require.NoError(t, out.err)
	assert.True(t, out.req.KeepAlive, "a valid client keep-alive header overrides the 1.0 default")
}

func TestParseHTTP09(t *testing.T) {
	out := parseOne(t, "GET /\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, Version09, out.req.Version)
	assert.False(t, out.req.KeepAlive)
	assert.Empty(t, out.req.Headers)
}

func TestParseConnectionCloseHonored(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	require.NoError(t, out.err)
	assert.False(t, out.req.KeepAlive)
}

func TestParseInvalidConnectionToken(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTTP/1.1\r\nHost: x\r\nConnection: upgrade\r\n\r\n"))
}

func TestParseMissingHost(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTTP/1.1\r\n\r\n"))
}

func TestParseMultiValueHostRejected(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n"))
}

func TestParseUnknownVersion(t *testing.T) {
	assert.Equal(t, StatusHTTPVersionNotSupported, parseStatus(t, "GET / HTTP/1.2\r\nHost: x\r\n\r\n"))
}

func TestParseUnimplementedMethod(t *testing.T) {
	assert.Equal(t, StatusNotImplemented, parseStatus(t, "DELETE / HTTP/1.1\r\nHost: x\r\n\r\n"))
}

func TestParseNonASCIIMethod(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "G\xffT / HTTP/1.1\r\nHost: x\r\n\r\n"))
}

func TestParseNulEscapeInTarget(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET /%00 HTTP/1.1\r\nHost: x\r\n\r\n"))
}

func TestParseOverlongRequestLine(t *testing.T) {
	raw := "GET /" + strings.Repeat("a", 4096) + " HTTP/1.1\r\nHost: x\r\n\r\n"
	assert.Equal(t, StatusURITooLong, parseStatus(t, raw))
}

func TestParseOverlongHeaderBlock(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Pad: " + strings.Repeat("a", 8192) + "\r\n\r\n"
	assert.Equal(t, StatusHeaderFieldsTooLarge, parseStatus(t, raw))
}

func TestParseTransferEncodingGzip(t *testing.T) {
	// The unrecognized method's 501 is pre-empted by the header
	// violation.
	assert.Equal(t, StatusBadRequest, parseStatus(t, "POST / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n\r\n"))
}

func TestParseTransferEncodingChunked(t *testing.T) {
	assert.Equal(t, StatusNotImplemented, parseStatus(t, "GET / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n"))
}

func TestParseTransferEncodingIdentity(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: identity\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, TransferIdentity, out.req.TransferEncoding)
}

func TestParseContentLength(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.1\r\nHost: x\r\nContent-Length: 12\r\n\r\nhello world!")
	require.NoError(t, out.err)
	assert.Equal(t, int64(12), out.req.ContentLength)
}

func TestParseConflictingContentLength(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTTP/1.1\r\nHost: x\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n"))
}

func TestParseNegativeContentLength(t *testing.T) {
	assert.Equal(t, StatusBadRequest, parseStatus(t, "GET / HTTP/1.1\r\nHost: x\r\nContent-Length: -5\r\n\r\n"))
}

func TestParseOversizeContentLength(t *testing.T) {
	assert.Equal(t, StatusPayloadTooLarge, parseStatus(t, "GET / HTTP/1.1\r\nHost: x\r\nContent-Length: 999999\r\n\r\n"))
}

func TestParseDuplicateHeadersMerge(t *testing.T) {
	out := parseOne(t, "GET / HTTP/1.1\r\nHost: x\r\nAccept: a\r\naccept: b\r\n\r\n")
	require.NoError(t, out.err)
	v, ok := out.req.Headers.Get("Accept")
	require.True(t, ok)
	assert.Equal(t, "a,b", v)
}

func TestParsePercentDecodedTarget(t *testing.T) {
	out := parseOne(t, "GET /abc%20xyz%5b HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, "/abc xyz[", out.req.Path)
}

func TestParseDotSegmentTarget(t *testing.T) {
	out := parseOne(t, "GET /a/b/.long/d/.././also_long/./f/../../g HTTP/1.1\r\nHost: x\r\n\r\n")
	require.NoError(t, out.err)
	assert.Equal(t, "/a/b/.long/g", out.req.Path)
}

func TestParseEOFBeforeRequestLine(t *testing.T) {
	res := runScheduler(t, func(sched *engine.Scheduler, tk *engine.Task) any {
		conn, peer := socketpairConn(t, sched, tk, time.Minute)
		require.NoError(t, shutdownWrite(peer))
		_, err := ParseRequest(conn, config.Default())
		conn.Close()
		return parseOutcome{nil, err}
	})
	out := res.(parseOutcome)
	assert.ErrorIs(t, out.err, engine.ErrEOF)
}
