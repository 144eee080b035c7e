package protocol

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is a single persistent connection to a Server, used by
// cmd/nrmctl both for one-shot commands and its interactive shell.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to addr with a bounded connect timeout.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Send writes one command line and reads back its length-prefixed reply.
// ok=false means the server appeared to be down (zero-length or missing
// reply length), per spec §6.
func (c *Client) Send(cmd string) (reply string, ok bool, err error) {
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", false, fmt.Errorf("protocol: send command: %w", err)
	}
	return ReadReply(c.conn)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
