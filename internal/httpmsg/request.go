package httpmsg

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pepnova/wsgate/internal/lexer"
	"github.com/pepnova/wsgate/internal/wserr"
)

// ErrIncomplete signals that data does not yet contain a full request head;
// the caller should buffer more bytes from the transport and retry.
var ErrIncomplete = errors.New("httpmsg: incomplete request")

// maxHeadSize bounds how many bytes of request-line-plus-headers we will
// buffer before giving up; prevents a slow-loris style client from growing
// the per-connection buffer without bound.
const maxHeadSize = 64 * 1024

var knownMethods = []string{
	"OPTIONS", "GET", "HEAD", "POST", "PUT", "DELETE", "TRACE", "CONNECT",
}

// Request is a parsed HTTP/1.1 request line plus headers (spec §3).
type Request struct {
	Method        string
	VersionMajor  int
	VersionMinor  int
	IsAsteriskForm bool
	URI           *url.URL
	Host          string
	Headers       HeaderList
}

// FindHeader returns the first case-insensitive match for name.
func (r *Request) FindHeader(name string) (string, bool) { return r.Headers.Get(name) }

// ReadRequest parses a single HTTP/1.1 request from the front of data. It
// returns the number of bytes consumed (the full request-line+headers
// block, including the terminating blank line) and ErrIncomplete if data
// does not yet hold a complete head. All other errors are wserr.Bad and
// leave the caller free to retry with more bytes.
func ReadRequest(data []byte) (*Request, int, error) {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(data) > maxHeadSize {
			return nil, 0, fmt.Errorf("%w: request head exceeds %d bytes", wserr.Bad, maxHeadSize)
		}
		return nil, 0, ErrIncomplete
	}
	consumed := idx + 4
	c := lexer.New(data[:consumed])

	req := &Request{}

	method := c.ConsumeWhile(isToken)
	if len(method) == 0 || !c.ConsumeLiteral([]byte(" ")) {
		return nil, 0, fmt.Errorf("%w: malformed request line", wserr.Bad)
	}
	if !isKnownMethod(string(method)) {
		return nil, 0, fmt.Errorf("%w: unknown method %q", wserr.Bad, method)
	}
	req.Method = string(method)

	uriTok := c.ConsumeWhile(func(b byte) bool { return b != ' ' })
	if len(uriTok) == 0 || !c.ConsumeLiteral([]byte(" ")) {
		return nil, 0, fmt.Errorf("%w: malformed request-uri", wserr.Bad)
	}
	if err := parseRequestURI(req, string(uriTok)); err != nil {
		return nil, 0, err
	}

	if !c.ConsumeLiteral([]byte("HTTP/")) {
		return nil, 0, fmt.Errorf("%w: missing HTTP-Version", wserr.Bad)
	}
	major, ok := c.ConsumeU32()
	if !ok || !c.ConsumeLiteral([]byte(".")) {
		return nil, 0, fmt.Errorf("%w: malformed HTTP-Version", wserr.Bad)
	}
	minor, ok := c.ConsumeU32()
	if !ok {
		return nil, 0, fmt.Errorf("%w: malformed HTTP-Version", wserr.Bad)
	}
	if !c.ConsumeCRLF() {
		return nil, 0, fmt.Errorf("%w: missing CRLF after request line", wserr.Bad)
	}
	req.VersionMajor = int(major)
	req.VersionMinor = int(minor)

	if err := readHeaders(c, &req.Headers); err != nil {
		return nil, 0, err
	}

	if err := resolveHost(req); err != nil {
		return nil, 0, err
	}

	return req, consumed, nil
}

func isKnownMethod(m string) bool {
	for _, known := range knownMethods {
		if m == known {
			return true
		}
	}
	return false
}

func parseRequestURI(req *Request, tok string) error {
	if tok == "*" {
		req.IsAsteriskForm = true
		req.URI = &url.URL{}
		return nil
	}
	if req.Method == "CONNECT" {
		// authority-form: host:port, no scheme or path.
		u, err := url.Parse("//" + tok)
		if err != nil {
			return fmt.Errorf("%w: bad authority-form uri: %v", wserr.Bad, err)
		}
		req.URI = u
		return nil
	}
	u, err := url.Parse(tok)
	if err != nil {
		return fmt.Errorf("%w: bad request-uri: %v", wserr.Bad, err)
	}
	req.URI = u
	return nil
}

// readHeaders consumes `name : LWS value CRLF` pairs until an empty name,
// then the terminating CRLF. Duplicate names are last-write-wins.
func readHeaders(c *lexer.Cursor, headers *HeaderList) error {
	for {
		if c.ConsumeCRLF() {
			return nil
		}
		name := c.ConsumeWhile(isToken)
		if len(name) == 0 {
			return fmt.Errorf("%w: malformed header name", wserr.Bad)
		}
		if !c.ConsumeLiteral([]byte(":")) {
			return fmt.Errorf("%w: missing ':' after header name", wserr.Bad)
		}
		if !c.ConsumeLWS() {
			// A value may legitimately be empty with no leading LWS at
			// all (e.g. "Name:\r\n"); tolerate that by checking directly
			// for CRLF before treating missing LWS as an error.
			if !c.Memcmp([]byte("\r\n")) {
				return fmt.Errorf("%w: malformed header value", wserr.Bad)
			}
		}
		value := c.ConsumeWhile(isTextByte)
		value = []byte(strings.TrimRight(string(value), " \t"))
		if !c.ConsumeCRLF() {
			return fmt.Errorf("%w: missing CRLF after header value", wserr.Bad)
		}
		headers.Set(string(name), string(value))
	}
}

// resolveHost implements spec §4.2's Host resolution: the URI authority if
// present; a Host header, if present, must equal that authority. Absent
// both, the request fails. A URI parser is an external collaborator per
// spec §1; we only consult its "does this request have a valid Host?"
// decision, i.e. req.URI.Host.
func resolveHost(req *Request) error {
	uriHost := ""
	if req.URI != nil {
		uriHost = req.URI.Host
	}
	headerHost, hasHeader := req.Headers.Get("Host")

	switch {
	case uriHost != "" && hasHeader:
		if !strings.EqualFold(uriHost, headerHost) {
			return fmt.Errorf("%w: Host header %q does not match request-uri authority %q", wserr.Bad, headerHost, uriHost)
		}
		req.Host = uriHost
	case uriHost != "":
		req.Host = uriHost
	case hasHeader:
		req.Host = headerHost
	default:
		return fmt.Errorf("%w: no Host available (neither request-uri authority nor Host header)", wserr.Bad)
	}
	return nil
}
