// Package protocol implements the line-oriented TCP wire format the server
// and CLI client speak to each other over (spec §6 "Client protocol"):
// client-to-server commands are raw newline-terminated UTF-8 bytes with no
// prefix, while server-to-client replies are a 4-byte big-endian length
// prefix followed by that many UTF-8 reply bytes, in the
// encoding/binary.BigEndian idiom the pack's own wire-format code
// (ngcxy-dranet's DHCP packet codec) uses for its header fields.
package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxReplyLen bounds the length prefix accepted from a peer, guarding
// against a corrupt or hostile stream driving an unbounded allocation.
const MaxReplyLen = 64 << 20 // 64 MiB

// WriteReply writes a length-prefixed reply frame: a 4-byte big-endian
// length followed by reply's UTF-8 bytes.
func WriteReply(w io.Writer, reply string) error {
	body := []byte(reply)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write reply length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("protocol: write reply body: %w", err)
	}
	return nil
}

// ReadReply reads one length-prefixed reply frame. A zero-length or
// missing length (the peer closed the connection before sending a header)
// is reported via ok=false, matching the spec's "a zero-length or missing
// length signals the server is down".
func ReadReply(r io.Reader) (reply string, ok bool, err error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", false, nil
		}
		return "", false, fmt.Errorf("protocol: read reply length: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return "", false, nil
	}
	if n > MaxReplyLen {
		return "", false, fmt.Errorf("protocol: reply length %d exceeds maximum %d", n, MaxReplyLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", false, fmt.Errorf("protocol: read reply body: %w", err)
	}
	return string(body), true, nil
}

// ReadCommand reads one newline-terminated command line from a
// *bufio.Reader, trimming the trailing newline (and any preceding carriage
// return). io.EOF with no bytes read means the peer closed the connection
// (spec: "the server also accepts EOF/empty receive to close a client").
func ReadCommand(r *bufio.Reader) (line string, eof bool, err error) {
	line, err = r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line == "" {
				return "", true, nil
			}
			// Last line before EOF with no trailing newline: still a
			// command worth dispatching.
			return trimEOL(line), false, nil
		}
		return "", false, fmt.Errorf("protocol: read command: %w", err)
	}
	return trimEOL(line), false, nil
}

func trimEOL(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
