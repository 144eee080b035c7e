package protocol

import (
	"bufio"
	"context"
	"net"

	"github.com/aist-nrm/nrm/pkg/util"
)

// Dispatcher runs one parsed command line and returns its reply, matching
// pkg/nrmops's Handler.Dispatch signature without importing that package
// (avoiding a pkg/protocol -> pkg/nrmops -> pkg/pathfinder import cycle
// risk, and keeping this package usable by anything that can answer a
// command line with a reply string).
type Dispatcher interface {
	Dispatch(ctx context.Context, line string) string
}

// Server serves the TCP command protocol over a single listener. Per
// spec §5's scheduling model ("the server accepts one TCP client at a
// time; requests on a client are serialized"), Serve never runs more than
// one connection concurrently: it accepts, handles that client to
// completion, then accepts the next.
type Server struct {
	Listener   net.Listener
	Dispatcher Dispatcher
}

// NewServer wraps an already-bound listener.
func NewServer(ln net.Listener, dispatcher Dispatcher) *Server {
	return &Server{Listener: ln, Dispatcher: dispatcher}
}

// Serve accepts and handles clients one at a time until ctx is done or
// Accept returns an error (typically because the listener was closed).
func (s *Server) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		conn, err := s.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	util.WithField("client", remote).Info("protocol: client connected")

	reader := bufio.NewReader(conn)
	for {
		line, eof, err := ReadCommand(reader)
		if err != nil {
			util.WithFields(map[string]any{"client": remote, "error": err}).Warn("protocol: read command failed")
			return
		}
		if eof {
			util.WithField("client", remote).Info("protocol: client closed connection")
			return
		}
		reply := s.Dispatcher.Dispatch(ctx, line)
		if err := WriteReply(conn, reply); err != nil {
			util.WithFields(map[string]any{"client": remote, "error": err}).Warn("protocol: write reply failed")
			return
		}
	}
}
