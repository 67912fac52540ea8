// Package mime maps file extensions to Content-Type values for served
// static files. It is a small closed table rather than the standard
// library's mime package because Short Circuit never needs to register
// types at runtime and the table doubles as a readable reference for
// every type this server can ever send.
package mime

import "strings"

var byExtension = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".wasm": "application/wasm",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".gz":   "application/gzip",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// DefaultType is used when the path's extension is unrecognized.
const DefaultType = "application/octet-stream"

// TypeForPath returns the Content-Type for path, based on its extension,
// matched case-insensitively and falling back to DefaultType.
func TypeForPath(path string) string {
	ext := extOf(path)
	if ext == "" {
		return DefaultType
	}
	if t, ok := byExtension[strings.ToLower(ext)]; ok {
		return t
	}
	return DefaultType
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return path[i:]
		case '/':
			return ""
		}
	}
	return ""
}
