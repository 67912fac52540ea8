package httpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3541/shortcircuit/internal/config"
)

func TestBuildPreBodyMandatoryHeaders(t *testing.T) {
	r := NewResponse(StatusOK, Version11, true)
	r.SetInlineBody([]byte("hello"), "text/plain")

	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	pre := string(r.buildPreBody(now))

	lines := strings.Split(strings.TrimSuffix(pre, "\r\n"), "\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK", lines[0])
	assert.Contains(t, pre, "Connection: keep-alive\r\n")
	assert.Contains(t, pre, "Content-Length: 5\r\n")
	assert.Contains(t, pre, "Content-Type: text/plain\r\n")
	assert.Contains(t, pre, "Date: ")
	assert.False(t, strings.HasSuffix(pre, "\r\n\r\n"), "the blank line belongs to the vectored send, not the pre-body")
}

func TestBuildPreBodyOmitsLengthWhenUnknown(t *testing.T) {
	r := NewResponse(StatusOK, Version10, false)
	pre := string(r.buildPreBody(time.Now()))

	assert.Contains(t, pre, "Connection: close\r\n")
	assert.NotContains(t, pre, "Content-Length:")
	assert.NotContains(t, pre, "Content-Type:")
}

func TestBuildPreBodyExtraHeaders(t *testing.T) {
	r := NewResponse(StatusOK, Version11, true)
	r.SetInlineBody(nil, "text/plain")
	r.SetHeader("ETag", `"abc"`)
	r.SetHeader("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")

	pre := string(r.buildPreBody(time.Now()))
	assert.Contains(t, pre, "ETag: \"abc\"\r\n")
	assert.Contains(t, pre, "Last-Modified: Mon, 02 Jan 2006 15:04:05 GMT\r\n")
}

func TestSuppressBodyKeepsContentLength(t *testing.T) {
	r := NewResponse(StatusOK, Version11, true)
	r.SetInlineBody([]byte("0123456789"), "text/plain")
	r.SuppressBody()

	assert.Equal(t, BodyNone, r.Kind)
	assert.Equal(t, int64(10), r.ContentLength)
}

func TestErrorBodyTemplate(t *testing.T) {
	body := string(errorBody(StatusNotFound, Version11, 512))
	assert.Contains(t, body, "404")
	assert.Contains(t, body, "Not Found")
	assert.Contains(t, body, "HTTP/1.1")
}

func TestErrorBodyCapped(t *testing.T) {
	body := errorBody(StatusNotFound, Version11, 16)
	assert.Len(t, body, 16)
}

func TestErrorResponseHeadSuppressesBodyOnly(t *testing.T) {
	r := errorResponse(StatusNotFound, Version11, false, true, 512)
	assert.Equal(t, BodyNone, r.Kind)
	assert.Greater(t, r.ContentLength, int64(0), "Content-Length still reflects the virtual body")
}

func TestDateCacheRefreshesWhenStale(t *testing.T) {
	var c dateCache
	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	first := c.get(base)
	assert.Equal(t, "Sat, 01 Mar 2025 12:00:00 GMT", first)

	// Within the staleness window: the cached string is reused verbatim.
	assert.Equal(t, first, c.get(base.Add(1500*time.Millisecond)))

	// Past it: refreshed.
	later := c.get(base.Add(3 * time.Second))
	assert.Equal(t, "Sat, 01 Mar 2025 12:00:03 GMT", later)
}

func TestLastModifiedCacheBuckets(t *testing.T) {
	var c lastModifiedCache
	m1 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	m2 := m1 + lastModifiedCacheSize // same bucket, different mtime

	s1 := c.get(m1)
	assert.Equal(t, time.Unix(m1, 0).UTC().Format(dateLayout), s1)
	assert.Equal(t, s1, c.get(m1), "repeat lookup hits the cache")

	s2 := c.get(m2)
	assert.Equal(t, time.Unix(m2, 0).UTC().Format(dateLayout), s2)
	// m1 was evicted by the collision; looking it up again re-renders
	// correctly.
	assert.Equal(t, s1, c.get(m1))
}

func TestETagFormat(t *testing.T) {
	assert.Equal(t, "1fX2aX3b", etagFor(0x1f, 0x2a, 0x3b))
	assert.Equal(t, "0X0X0", etagFor(0, 0, 0))
}

func TestStatusReasonPhrases(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.Reason())
	assert.Equal(t, "I'm a teapot", StatusTeapot.Reason())
	assert.Equal(t, "Unknown", Status(299).Reason())
}

func TestFrozenResponsePanicsOnSecondWrite(t *testing.T) {
	r := NewResponse(StatusOK, Version11, true)
	r.frozen = true
	require.Panics(t, func() { _ = r.Write(nil, config.Default()) })
}
