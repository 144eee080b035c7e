package solver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// testSSHServer listens on a loopback TCP port, serves every connection it
// accepts, and answers each exec request with echoCmd's output as stdout
// and echoCmd's code as the exit status. This stands in for a real sshd so Remote's
// session/exec plumbing can be exercised without a network fixture.
func testSSHServer(t *testing.T, echoCmd func(cmd string) (string, int)) (host string, port int, stop func()) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating test host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("wrapping test host key: %v", err)
	}
	serverCfg := &ssh.ServerConfig{NoClientAuth: true}
	serverCfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		for {
			nconn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveOneSSHConn(nconn, serverCfg, echoCmd)
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port, func() { ln.Close() }
}

func serveOneSSHConn(nconn net.Conn, cfg *ssh.ServerConfig, echoCmd func(string) (string, int)) {
	conn, chans, reqs, err := ssh.NewServerConn(nconn, cfg)
	if err != nil {
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					if req.WantReply {
						req.Reply(false, nil)
					}
					continue
				}
				// payload is a length-prefixed string per RFC 4254 §6.5.
				cmd := string(req.Payload[4:])
				out, code := echoCmd(cmd)
				ch.Write([]byte(out))
				req.Reply(true, nil)
				ch.SendRequest("exit-status", false, ssh.Marshal(&struct{ Status uint32 }{uint32(code)}))
				return
			}
		}()
	}
}

func TestRemoteSolveRunsCommandOverSSH(t *testing.T) {
	var gotCmd string
	host, port, stop := testSSHServer(t, func(cmd string) (string, int) {
		gotCmd = cmd
		return "ok\n", 0
	})
	defer stop()

	remote, err := DialRemote(host, port, "test", "", nil)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	defer remote.Close()

	out, err := remote.Solve(context.Background(), "/tmp/a.model", "/tmp/a.data", "/tmp/a.sol", 5*time.Second)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if out != "ok\n" {
		t.Fatalf("unexpected output: %q", out)
	}
	if gotCmd == "" {
		t.Fatal("expected a command to reach the server")
	}
}

func TestRemoteRunDisplaySplitsStdoutStderr(t *testing.T) {
	host, port, stop := testSSHServer(t, func(cmd string) (string, int) {
		return "display output\n", 0
	})
	defer stop()

	remote, err := DialRemote(host, port, "test", "", nil)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	defer remote.Close()

	stdout, _, err := remote.RunDisplay(context.Background(), "/tmp/a.model", "/tmp/a.data")
	if err != nil {
		t.Fatalf("RunDisplay: %v", err)
	}
	if stdout != "display output\n" {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
}

func TestRemoteFetchFile(t *testing.T) {
	host, port, stop := testSSHServer(t, func(cmd string) (string, int) {
		return "file contents\n", 0
	})
	defer stop()

	remote, err := DialRemote(host, port, "test", "", nil)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	defer remote.Close()

	data, err := remote.FetchFile("/tmp/a.sol")
	if err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	if string(data) != "file contents\n" {
		t.Fatalf("unexpected data: %q", data)
	}
}
