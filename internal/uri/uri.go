// Package uri parses and normalizes HTTP request targets.
package uri

import (
	"errors"
	"strings"
)

// Scheme is the URI's scheme component, when present.
type Scheme uint8

const (
	SchemeNone Scheme = iota
	SchemeHTTP
	SchemeHTTPS
)

// Form is the HTTP request-target form (RFC 9112 §3.2).
type Form uint8

const (
	FormOrigin Form = iota
	FormAbsolute
	FormAuthority
	FormAsterisk
)

// URI is the parsed and normalized result of Parse.
type URI struct {
	Scheme    Scheme
	Form      Form
	Authority string
	Path      string
	Query     string
}

// Errors returned by Parse. ErrBadURI covers both malformed escapes and
// any attempt to traverse above the root via "..".
var (
	ErrBadURI  = errors.New("uri: malformed request target")
	ErrTooLong = errors.New("uri: request target exceeds maximum length")
)

// MaxLength bounds the input accepted by Parse; callers should reject
// longer input with 414 before ever calling Parse.
const MaxLength = 8192

// Parse parses and normalizes raw, an owned byte string taken directly
// from the request line. It never returns a Path that is empty or that
// lacks a leading "/", and any percent-escape is decoded before "."/".."
// segments are resolved, so encoded traversal attempts ("%2e%2e") are
// caught identically to literal ones.
func Parse(raw string) (URI, error) {
	if len(raw) > MaxLength {
		return URI{}, ErrTooLong
	}
	if raw == "" {
		return URI{}, ErrBadURI
	}
	if raw == "*" {
		return URI{Form: FormAsterisk, Path: "/"}, nil
	}

	u := URI{}
	rest := raw

	if strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://") {
		u.Form = FormAbsolute
		if strings.HasPrefix(rest, "https://") {
			u.Scheme = SchemeHTTPS
			rest = rest[len("https://"):]
		} else {
			u.Scheme = SchemeHTTP
			rest = rest[len("http://"):]
		}
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			u.Authority = rest
			rest = "/"
		} else {
			u.Authority = rest[:idx]
			rest = rest[idx:]
		}
		if u.Authority == "" {
			return URI{}, ErrBadURI
		}
	} else if !strings.HasPrefix(rest, "/") {
		// CONNECT's authority-form target: no scheme and no path of its
		// own, so Path is the root.
		if strings.Contains(rest, "/") || strings.Contains(rest, "?") {
			return URI{}, ErrBadURI
		}
		u.Form = FormAuthority
		u.Authority = rest
		u.Path = "/"
		return u, nil
	}

	path := rest
	query := ""
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		path = rest[:idx]
		query = rest[idx+1:]
	}

	decodedPath, err := percentDecode(path)
	if err != nil {
		return URI{}, err
	}
	decodedQuery, err := percentDecode(query)
	if err != nil {
		return URI{}, err
	}

	normalized, err := normalizePath(decodedPath)
	if err != nil {
		return URI{}, err
	}

	u.Path = normalized
	u.Query = decodedQuery
	return u, nil
}

// percentDecode decodes %XX escapes, rejecting %00 and malformed
// sequences outright.
func percentDecode(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", ErrBadURI
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return "", ErrBadURI
		}
		v := hi<<4 | lo
		if v == 0 {
			return "", ErrBadURI
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// normalizePath resolves "." and ".." segments, rejecting any attempt to
// ascend above the root. The result always starts with "/"; a fully
// collapsed path ("/") is returned for input like "/a/..".
func normalizePath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", ErrBadURI
	}
	segments := strings.Split(p, "/")[1:] // drop the leading empty segment
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", ErrBadURI
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(stack, "/"), nil
}
