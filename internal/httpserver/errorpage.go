package httpserver

import "fmt"

// errorBody renders the fixed HTML error-page template for status,
// truncating to maxLen bytes (the HTTP_ERROR_BODY_MAX tunable) if the
// rendered document would exceed it.
func errorBody(status Status, version Version, maxLen int) []byte {
	body := fmt.Sprintf(
		"<!DOCTYPE html>\n<html><head><title>%d %s</title></head>"+
			"<body><h1>%d %s</h1><p>%s</p></body></html>\n",
		int(status), status.Reason(), int(status), status.Reason(), version.String(),
	)
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return []byte(body)
}

// errorResponse assembles a complete error Response for status. If head
// is true (the failing request was HEAD), the body is suppressed but
// Content-Length still reports the page's virtual size.
func errorResponse(status Status, version Version, keepAlive bool, head bool, maxBodyLen int) *Response {
	resp := NewResponse(status, version, keepAlive)
	body := errorBody(status, version, maxBodyLen)
	resp.SetInlineBody(body, "text/html")
	if head {
		resp.SuppressBody()
	}
	return resp
}
