package device

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHTunnel holds a dialed SSH connection to a controller or solver host,
// used to run glpsol next to a device's controller rather than on the NRM
// server itself (spec §9's alternate deployment note).
type SSHTunnel struct {
	sshClient *ssh.Client
}

// NewSSHTunnel dials SSH on host:port with password auth.
// If port is 0, defaults to 22.
func NewSSHTunnel(host, user, pass string, port int) (*SSHTunnel, error) {
	if port == 0 {
		port = 22
	}
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(pass),
		},
		// Lab/test environment — production would verify host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", user, addr, err)
	}

	return &SSHTunnel{sshClient: sshClient}, nil
}

// Close closes the underlying SSH connection.
func (t *SSHTunnel) Close() error {
	return t.sshClient.Close()
}

// SSHClient returns the underlying ssh.Client for opening command sessions,
// used by pkg/solver.Remote to split stdout/stderr for display-mode runs.
func (t *SSHTunnel) SSHClient() *ssh.Client { return t.sshClient }

// ExecCommand runs a command on the remote host via SSH and returns the
// combined output. The SSH session is created per-call (stateless).
func (t *SSHTunnel) ExecCommand(cmd string) (string, error) {
	session, err := t.sshClient.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(output), fmt.Errorf("SSH exec '%s': %w", cmd, err)
	}
	return string(output), nil
}
