package httpmsg

import (
	"bytes"
	"fmt"
)

// Response is a status line, headers, and optional body (spec §3).
type Response struct {
	VersionMajor int
	VersionMinor int
	StatusCode   int
	Headers      HeaderList
	Body         []byte
}

// NewResponse builds a 1.1 response with no headers or body.
func NewResponse(statusCode int) *Response {
	return &Response{VersionMajor: 1, VersionMinor: 1, StatusCode: statusCode}
}

func (r *Response) SetHeader(name, value string) { r.Headers.Set(name, value) }

var reasonPhrases = map[int]string{
	101: "Switching Protocols",
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
	505: "HTTP Version Not Supported",
}

// reasonPhrase returns the built-in reason for code, or "" if unknown.
func reasonPhrase(code int) string {
	return reasonPhrases[code]
}

// WriteResponse appends the serialized response to buf: status line,
// header lines, a blank line, then the optional body (spec §4.3).
func WriteResponse(buf *bytes.Buffer, r *Response) {
	fmt.Fprintf(buf, "HTTP/%d.%d %d %s\r\n", r.VersionMajor, r.VersionMinor, r.StatusCode, reasonPhrase(r.StatusCode))
	for _, h := range r.Headers {
		fmt.Fprintf(buf, "%s: %s\r\n", h.Name, h.Value)
	}
	buf.WriteString("\r\n")
	if len(r.Body) > 0 {
		buf.Write(r.Body)
	}
}
