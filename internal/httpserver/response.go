package httpserver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3541/shortcircuit/engine"
	"github.com/3541/shortcircuit/internal/config"
)

// BodyKind tags what a Response's body target is.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyInline
	BodyFile
)

// Response is one assembled HTTP response: a status line, a set of
// headers, and a body tagged as one of {none, inline-bytes, file-fd}.
// Once Write has sent the first byte to the socket the Response is
// frozen; Write panics if called a second time.
type Response struct {
	Status  Status
	Version Version

	ContentType   string
	ContentLength int64 // -1: omit the header (unknown length)
	extra         []headerField

	Kind       BodyKind
	InlineBody []byte
	FileFD     int
	FileSize   int64

	keepAlive bool
	frozen    bool
}

type headerField struct{ name, value string }

// NewResponse constructs a Response for status answering a request of
// the given version, defaulting to no body and an omitted content
// length until a SetXBody call configures one.
func NewResponse(status Status, version Version, keepAlive bool) *Response {
	return &Response{Status: status, Version: version, ContentLength: -1, keepAlive: keepAlive}
}

// SetHeader appends an additional response header (ETag, Last-Modified,
// ...) beyond the mandatory defaults Write always emits.
func (r *Response) SetHeader(name, value string) {
	r.extra = append(r.extra, headerField{name, value})
}

// SetInlineBody configures r to send body verbatim after the headers.
func (r *Response) SetInlineBody(body []byte, contentType string) {
	r.Kind = BodyInline
	r.InlineBody = body
	r.ContentType = contentType
	r.ContentLength = int64(len(body))
}

// SetFileBody configures r to stream size bytes from fd after the
// headers (the caller retains ownership of fd; Write never closes it).
func (r *Response) SetFileBody(fd int, size int64, contentType string) {
	r.Kind = BodyFile
	r.FileFD = fd
	r.FileSize = size
	r.ContentType = contentType
	r.ContentLength = size
}

// SuppressBody switches an already-configured Response to send no body
// bytes (the HEAD case) while leaving ContentLength reporting the size
// the body would have had.
func (r *Response) SuppressBody() {
	r.Kind = BodyNone
}

var globalDateCache dateCache
var globalLastModifiedCache lastModifiedCache

// buildPreBody renders the status line and every header (mandatory
// defaults plus any SetHeader extras) into one buffer. It does not
// include the blank line separating headers from body; Write appends
// that separately as part of the vectored send.
func (r *Response) buildPreBody(now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\r\n", r.Version.String(), int(r.Status), r.Status.Reason())

	fmt.Fprintf(&b, "Date: %s\r\n", globalDateCache.get(now))

	connVal := "close"
	if r.keepAlive {
		connVal = "keep-alive"
	}
	fmt.Fprintf(&b, "Connection: %s\r\n", connVal)

	if r.ContentLength >= 0 {
		fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.FormatInt(r.ContentLength, 10))
		if r.ContentType != "" {
			fmt.Fprintf(&b, "Content-Type: %s\r\n", r.ContentType)
		}
	}

	for _, f := range r.extra {
		fmt.Fprintf(&b, "%s: %s\r\n", f.name, f.value)
	}

	return []byte(b.String())
}

// Write assembles and sends r over c: a single vectored send of
// {pre-body, blank-line, body} for an inline or absent body, or the
// pre-body/blank-line vector followed by a read/send streaming loop for
// a file body (chunked by c.Out's capacity; splice is not used, per the
// recommended default noted for tolerating short-splice kernel
// behavior).
func (r *Response) Write(c *engine.Connection, cfg config.Config) error {
	if r.frozen {
		panic("httpserver: Response already written")
	}
	r.frozen = true

	preBody := r.buildPreBody(time.Now())
	iovs := [][]byte{preBody, []byte("\r\n")}

	if r.Kind == BodyInline {
		iovs = append(iovs, r.InlineBody)
	}
	if err := c.WritevAll(iovs); err != nil {
		return err
	}

	if r.Kind != BodyFile {
		return nil
	}
	return r.streamFile(c, cfg)
}

// streamFile reads FileSize bytes from FileFD in send-buffer-sized
// chunks, sending each chunk in turn, until the full content length has
// been transferred. The connection's send buffer provides the scratch
// space, so a keep-alive connection reuses one allocation across every
// file it serves.
func (r *Response) streamFile(c *engine.Connection, cfg config.Config) error {
	remaining := r.FileSize
	c.Out.Reset()
	if err := c.Out.Reserve(cfg.SendBufInitial); err != nil {
		return err
	}
	chunk := c.Out.WritePtr()
	for remaining > 0 {
		want := int64(len(chunk))
		if remaining < want {
			want = remaining
		}
		res := c.ReadFD(r.FileFD, chunk[:want])
		if res.Err != nil {
			return res.Err
		}
		if res.EOF || res.N == 0 {
			break
		}
		if err := c.SendAll(chunk[:res.N]); err != nil {
			return err
		}
		remaining -= int64(res.N)
	}
	return nil
}
