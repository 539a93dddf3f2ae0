package handshake

import (
	"bytes"
	"testing"

	"github.com/pepnova/wsgate/internal/httpmsg"
)

func acceptedFixtureRequest(t *testing.T) *httpmsg.Request {
	t.Helper()
	data := []byte("GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Origin: http://example.com\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"\r\n")
	req, _, err := httpmsg.ReadRequest(data)
	if err != nil {
		t.Fatalf("fixture failed to parse: %v", err)
	}
	return req
}

func TestNegotiateAccepts(t *testing.T) {
	req := acceptedFixtureRequest(t)
	res := Negotiate(req)
	if !res.Accepted {
		t.Fatal("expected accept")
	}
	var buf bytes.Buffer
	httpmsg.WriteResponse(&buf, res.Response)
	out := buf.String()
	if !bytes.HasPrefix(buf.Bytes(), []byte("HTTP/1.1 101 Switching Protocols\r\n")) {
		t.Fatalf("unexpected first line: %q", out)
	}
	if got, _ := res.Response.Headers.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("accept = %q", got)
	}
}

func TestNegotiateRejectsMissingOrigin(t *testing.T) {
	req := acceptedFixtureRequest(t)
	for i, h := range req.Headers {
		if h.Name == "Origin" {
			req.Headers = append(req.Headers[:i], req.Headers[i+1:]...)
			break
		}
	}
	res := Negotiate(req)
	if res.Accepted {
		t.Fatal("expected rejection")
	}
	if res.Response.StatusCode != 403 {
		t.Fatalf("status = %d, want 403", res.Response.StatusCode)
	}
	if v, _ := res.Response.Headers.Get("Connection"); v != "Close" {
		t.Fatalf("Connection header = %q, want Close", v)
	}
}

func TestNegotiateRejectsBadVersion(t *testing.T) {
	req := acceptedFixtureRequest(t)
	req.Headers.Set("Sec-WebSocket-Version", "8")
	res := Negotiate(req)
	if res.Accepted || res.Response.StatusCode != 400 {
		t.Fatalf("expected 400 rejection, got accepted=%v status=%d", res.Accepted, res.Response.StatusCode)
	}
	if v, _ := res.Response.Headers.Get("Sec-WebSocket-Version"); v != "13" {
		t.Fatalf("advertised version = %q, want 13", v)
	}
}

func TestNegotiateRejectsOldHTTPVersion(t *testing.T) {
	req := acceptedFixtureRequest(t)
	req.VersionMinor = 0
	res := Negotiate(req)
	if res.Accepted || res.Response.StatusCode != 505 {
		t.Fatalf("expected 505, got accepted=%v status=%d", res.Accepted, res.Response.StatusCode)
	}
}

func TestAcceptTokenRFC6455Example(t *testing.T) {
	got := AcceptToken("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
