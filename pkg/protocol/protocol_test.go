package protocol

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestWriteReadReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReply(&buf, "globalId=urn:uuid:abc"); err != nil {
		t.Fatalf("WriteReply: %v", err)
	}
	reply, ok, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "globalId=urn:uuid:abc" {
		t.Errorf("got %q", reply)
	}
}

func TestReadReplyEmptyStreamSignalsDown(t *testing.T) {
	_, ok, err := ReadReply(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false on empty stream")
	}
}

func TestReadReplyZeroLengthSignalsDown(t *testing.T) {
	_, ok, err := ReadReply(bytes.NewReader([]byte{0, 0, 0, 0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok=false on zero length")
	}
}

func TestReadReplyOversizeRejected(t *testing.T) {
	var header [4]byte
	header[0] = 0xFF // absurdly large length
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	_, _, err := ReadReply(bytes.NewReader(header[:]))
	if err == nil {
		t.Fatal("expected error for oversize length")
	}
}

func TestReadCommandTrimsNewline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("query -g foo\r\n"))
	line, eof, err := ReadCommand(r)
	if err != nil || eof {
		t.Fatalf("ReadCommand: line=%q eof=%v err=%v", line, eof, err)
	}
	if line != "query -g foo" {
		t.Errorf("got %q", line)
	}
}

func TestReadCommandEOFWithNoBytes(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, eof, err := ReadCommand(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eof {
		t.Error("expected eof=true on empty stream")
	}
}

func TestReadCommandLastLineWithoutTrailingNewline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("writeDB"))
	line, eof, err := ReadCommand(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eof {
		t.Error("expected eof=false, since a command was read before EOF")
	}
	if line != "writeDB" {
		t.Errorf("got %q", line)
	}
}

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(ctx context.Context, line string) string {
	return "echo: " + line
}

func TestServerServesOneClientAtATime(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(ln, echoDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("pathfind -s A -d B\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, ok, err := ReadReply(conn)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "echo: pathfind -s A -d B" {
		t.Errorf("got %q", reply)
	}
}

func TestClientSendRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(ln, echoDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	client, err := Dial(ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	reply, ok, err := client.Send("query")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "echo: query" {
		t.Errorf("got %q", reply)
	}
}

func TestClientSendAfterServerClosedSignalsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	srv := NewServer(ln, echoDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	cancel()
	ln.Close()
	time.Sleep(50 * time.Millisecond)

	_, ok, _ := client.Send("query")
	if ok {
		t.Error("expected ok=false once server is down")
	}
}
