package solver

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/aist-nrm/nrm/pkg/device"
)

// Remote runs glpsol on a device reachable over SSH, for deployments where
// the NRM server and the GLPK toolchain live on different hosts (spec §9's
// alternate deployment note). model/data/sol paths are interpreted on the
// remote host, so callers must stage files there before calling Solve. It
// rides on device.SSHTunnel's dial/session machinery rather than opening
// its own SSH connection.
type Remote struct {
	Tunnel  *device.SSHTunnel
	BinPath string // defaults to "glpsol" if empty
	Log     *logrus.Entry
}

// NewRemote wraps an already-dialed tunnel.
func NewRemote(tunnel *device.SSHTunnel, log *logrus.Entry) *Remote {
	return &Remote{Tunnel: tunnel, BinPath: "glpsol", Log: log}
}

// DialRemote dials host:port over SSH (password auth, matching
// device.NewSSHTunnel's own lab-deployment posture) and returns a Remote
// ready to run glpsol there.
func DialRemote(host string, port int, user, pass string, log *logrus.Entry) (*Remote, error) {
	tunnel, err := device.NewSSHTunnel(host, user, pass, port)
	if err != nil {
		return nil, fmt.Errorf("solver: dialing remote solver host: %w", err)
	}
	return NewRemote(tunnel, log), nil
}

// Close tears down the underlying SSH connection.
func (r *Remote) Close() error {
	return r.Tunnel.Close()
}

// Solve runs glpsol on the remote host via a fresh SSH session per call,
// using device.SSHTunnel.ExecCommand's one-session-per-command style
// directly.
// ctx's deadline (if any) is not enforced against the remote process beyond
// what --tmlim itself bounds, since ssh.Session has no native cancellation.
func (r *Remote) Solve(ctx context.Context, modelFile, dataFile, solFile string, timeout time.Duration) (string, error) {
	bin := r.BinPath
	if bin == "" {
		bin = "glpsol"
	}

	cmd := fmt.Sprintf("%s --model %q --data %q --output %q --tmlim %d",
		bin, modelFile, dataFile, solFile, int(timeout.Seconds()))

	if r.Log != nil {
		r.Log.WithField("cmd", cmd).Debug("remote glpsol exec")
	}

	out, err := r.Tunnel.ExecCommand(cmd)
	if isRemoteExitError(err) {
		// Non-zero exit just means glpsol judged the problem infeasible;
		// the .sol file (fetched separately by the caller) is
		// authoritative.
		err = nil
	}
	return out, err
}

// isRemoteExitError unwraps ExecCommand's wrapped error looking for
// *ssh.ExitError, since ExecCommand wraps it via fmt.Errorf("...: %w", err).
func isRemoteExitError(err error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RunDisplay runs glpsol on the remote host in display mode, returning its
// stdout/stderr separately so only stdout is persisted as a .conn.txt file.
// device.SSHTunnel.ExecCommand combines both streams, so this opens its own
// session via the tunnel's underlying client for the split.
func (r *Remote) RunDisplay(ctx context.Context, modelFile, dataFile string) (string, string, error) {
	bin := r.BinPath
	if bin == "" {
		bin = "glpsol"
	}

	session, err := r.Tunnel.SSHClient().NewSession()
	if err != nil {
		return "", "", fmt.Errorf("solver: remote SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	cmd := fmt.Sprintf("%s --model %q --data %q", bin, modelFile, dataFile)
	if r.Log != nil {
		r.Log.WithField("cmd", cmd).Debug("remote glpsol display exec")
	}
	if err := session.Run(cmd); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("solver: remote glpsol exited non-zero for %s: %w", modelFile, err)
	}
	return stdout.String(), stderr.String(), nil
}

// FetchFile retrieves the remote sol file's contents over the same SSH
// connection, for callers that need to run ParseCost against remote output
// without a shared filesystem.
func (r *Remote) FetchFile(path string) ([]byte, error) {
	out, err := r.Tunnel.ExecCommand(fmt.Sprintf("cat %q", path))
	if err != nil {
		return nil, fmt.Errorf("solver: fetching remote file %s: %w", path, err)
	}
	return []byte(out), nil
}
