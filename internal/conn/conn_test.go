package conn

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pepnova/wsgate/internal/fanout"
)

const testGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// fakeTable is a minimal in-memory Table double, enough to drive the
// conn-level tests without a real fanout.Table or Redis connection.
type fakeTable struct {
	subs map[string][]fanout.Socket
}

func newFakeTable() *fakeTable { return &fakeTable{subs: make(map[string][]fanout.Socket)} }

func (f *fakeTable) Publish(ctx context.Context, channel, payload string) error {
	for _, s := range f.subs[channel] {
		s.SendText([]byte(fmt.Sprintf(`{"key":%q,"data":%q}`, channel, payload)))
	}
	return nil
}

func (f *fakeTable) Subscribe(ctx context.Context, channel string, sock fanout.Socket) error {
	f.subs[channel] = append(f.subs[channel], sock)
	return nil
}

func (f *fakeTable) Unsubscribe(ctx context.Context, channel string, sock fanout.Socket) error {
	list := f.subs[channel]
	for i, s := range list {
		if s.ID() == sock.ID() {
			f.subs[channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeTable) UnsubscribeAll(ctx context.Context, sock fanout.Socket) error {
	for ch, list := range f.subs {
		for i, s := range list {
			if s.ID() == sock.ID() {
				f.subs[ch] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return nil
}

// rawFrame is a server-to-client frame as seen by the test's raw reader.
type rawFrame struct {
	opcode  byte
	payload []byte
}

func maskClientFrame(opcode byte, payload []byte) []byte {
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	masked := make([]byte, len(payload))
	for i := range payload {
		masked[i] = payload[i] ^ mask[i%4]
	}
	header := []byte{0x80 | opcode, 0x80 | byte(len(payload))}
	if len(payload) >= 126 {
		header = []byte{0x80 | opcode, 0x80 | 126, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
	}
	out := append(header, mask[:]...)
	return append(out, masked...)
}

func readRawFrame(t *testing.T, r io.Reader) rawFrame {
	t.Helper()
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		t.Fatalf("read header: %v", err)
	}
	opcode := head[0] & 0x0F
	length := int(head[1] & 0x7F)
	if length == 126 {
		ext := make([]byte, 2)
		if _, err := io.ReadFull(r, ext); err != nil {
			t.Fatalf("read ext length: %v", err)
		}
		length = int(binary.BigEndian.Uint16(ext))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return rawFrame{opcode: opcode, payload: payload}
}

func dialAndHandshake(t *testing.T, client net.Conn) {
	t.Helper()
	key := "dGhlIHNhbXBsZSBub25jZQ=="
	req := "GET / HTTP/1.1\r\n" +
		"Host: example.test\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Origin: http://example.test\r\n" +
		fmt.Sprintf("Sec-WebSocket-Key: %s\r\n", key) +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read handshake response: %v", err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.1 101") {
		t.Fatalf("expected 101 response, got: %s", resp)
	}
	sum := sha1.Sum([]byte(key + testGUID))
	expected := base64.StdEncoding.EncodeToString(sum[:])
	if !strings.Contains(resp, expected) {
		t.Fatalf("missing expected accept key %s in response: %s", expected, resp)
	}
}

func newServedPipe(t *testing.T, table Table) (client net.Conn, serverConn *Conn) {
	t.Helper()
	client, server := net.Pipe()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	serverConn = New(server, table, log)
	go serverConn.Serve(context.Background())
	dialAndHandshake(t, client)
	return client, serverConn
}

func TestHandshakeThenSubscribeAndPublish(t *testing.T) {
	table := newFakeTable()
	client, _ := newServedPipe(t, table)
	defer client.Close()

	sub := []byte(`{"action":"sub","key":"room"}`)
	if _, err := client.Write(maskClientFrame(0x1, sub)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	// Give the server goroutine a chance to process before publishing.
	time.Sleep(20 * time.Millisecond)
	if err := table.Publish(context.Background(), "room", "hi"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	f := readRawFrame(t, client)
	if f.opcode != 0x1 {
		t.Fatalf("expected text frame, got opcode %d", f.opcode)
	}
	if !strings.Contains(string(f.payload), `"room"`) || !strings.Contains(string(f.payload), `"hi"`) {
		t.Fatalf("unexpected envelope: %s", f.payload)
	}
}

func TestCloseCascadesUnsubscribe(t *testing.T) {
	table := newFakeTable()
	client, serverConn := newServedPipe(t, table)

	sub := []byte(`{"action":"sub","key":"room"}`)
	if _, err := client.Write(maskClientFrame(0x1, sub)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(table.subs["room"]) != 1 {
		t.Fatalf("expected one subscriber, got %d", len(table.subs["room"]))
	}

	client.Close()
	time.Sleep(20 * time.Millisecond)
	if len(table.subs["room"]) != 0 {
		t.Fatalf("expected subscription to be cleaned up, got %d", len(table.subs["room"]))
	}
	_ = serverConn
}
