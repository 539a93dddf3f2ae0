// Package handshake validates the WebSocket opening handshake (RFC 6455
// §4) and produces either a 101 response or a precise HTTP error response,
// per spec §4.4.
package handshake

import (
	"crypto/sha1"
	"encoding/base64"

	"github.com/pepnova/wsgate/internal/httpmsg"
)

// acceptGUID is the fixed GUID RFC 6455 mandates be concatenated with the
// client's key before hashing.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Result carries the handshake's outcome.
type Result struct {
	Response *httpmsg.Response
	Accepted bool
}

// Negotiate validates req against RFC 6455 §4 and spec §4.4, in order:
//  1. HTTP/1.x, x>=1, else 505.
//  2. Upgrade: websocket and Connection: upgrade (case-insensitive), else 400.
//  3. Origin present, else 403.
//  4. Sec-WebSocket-Version: 13, else 400 (advertising the supported version).
//  5. Sec-WebSocket-Key present, else 400.
//  6. Compute accept token, emit 101.
//
// All rejections set Connection: Close so the caller can tear the socket
// down once the response is flushed.
func Negotiate(req *httpmsg.Request) Result {
	if req.VersionMajor != 1 || req.VersionMinor < 1 {
		return reject(505)
	}
	if !req.Headers.HasToken("Upgrade", "websocket") {
		return reject(400)
	}
	if !req.Headers.HasToken("Connection", "upgrade") {
		return reject(400)
	}
	if _, ok := req.FindHeader("Origin"); !ok {
		return reject(403)
	}
	version, ok := req.FindHeader("Sec-WebSocket-Version")
	if !ok || version != "13" {
		resp := httpmsg.NewResponse(400)
		resp.SetHeader("Sec-WebSocket-Version", "13")
		resp.SetHeader("Connection", "Close")
		return Result{Response: resp, Accepted: false}
	}
	key, ok := req.FindHeader("Sec-WebSocket-Key")
	if !ok {
		return reject(400)
	}

	accept := AcceptToken(key)

	resp := httpmsg.NewResponse(101)
	resp.SetHeader("Connection", "Upgrade")
	resp.SetHeader("Upgrade", "websocket")
	resp.SetHeader("Sec-WebSocket-Accept", accept)
	if cookie, ok := req.FindHeader("Cookie"); ok {
		// Forwarded for downstream session affinity, per spec §4.8.
		resp.SetHeader("Cookie", cookie)
	}

	return Result{Response: resp, Accepted: true}
}

// AcceptToken computes Base64(SHA-1(key || GUID)), the contract spec §4.1
// assigns to the external SHA-1/Base64 primitives.
func AcceptToken(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func reject(status int) Result {
	resp := httpmsg.NewResponse(status)
	resp.SetHeader("Connection", "Close")
	return Result{Response: resp, Accepted: false}
}
