package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultConnectTimeout = 15 * time.Second

// ExecutorConfig configures both executors.
type ExecutorConfig struct {
	// KnownHostsFile verifies host keys. Empty accepts any host key.
	KnownHostsFile string
	ConnectTimeout time.Duration
}

// ClientExecutor runs commands with the in-process SSH client.
type ClientExecutor struct {
	config ExecutorConfig
}

// NewClientExecutor creates a ClientExecutor.
func NewClientExecutor(config ExecutorConfig) *ClientExecutor {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	return &ClientExecutor{config: config}
}

// Run executes cmd and returns its combined output.
func (e *ClientExecutor) Run(ctx context.Context, cmd Command) (string, error) {
	keyPEM, err := os.ReadFile(cmd.KeyFile)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	signer, err := gossh.ParsePrivateKey(keyPEM)
	if err != nil {
		return "", fmt.Errorf("parse key: %w", err)
	}

	hostKeyCallback := gossh.InsecureIgnoreHostKey() //nolint:gosec
	if e.config.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(e.config.KnownHostsFile)
		if err != nil {
			return "", fmt.Errorf("load known hosts: %w", err)
		}
	}

	addr := net.JoinHostPort(cmd.Host, strconv.Itoa(cmd.Port))
	dialer := &net.Dialer{Timeout: e.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	_ = conn.SetDeadline(time.Now().Add(e.config.ConnectTimeout))
	sshConn, chans, reqs, err := gossh.NewClientConn(conn, addr, &gossh.ClientConfig{
		User:            cmd.User,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.config.ConnectTimeout,
	})
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("ssh handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := gossh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd.Command) }()

	select {
	case err := <-done:
		if err != nil {
			return out.String(), fmt.Errorf("run command: %w", err)
		}
		return out.String(), nil
	case <-ctx.Done():
		_ = client.Close()
		<-done
		return out.String(), fmt.Errorf("run command: %w", ctx.Err())
	}
}

// BinaryExecutor runs commands with the system ssh binary in batch mode.
type BinaryExecutor struct {
	config ExecutorConfig
	binary string
}

// NewBinaryExecutor creates a BinaryExecutor using the ssh binary from PATH.
func NewBinaryExecutor(config ExecutorConfig) *BinaryExecutor {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	return &BinaryExecutor{config: config, binary: "ssh"}
}

// Args returns the ssh arguments for cmd.
func (e *BinaryExecutor) Args(cmd Command) []string {
	args := []string{
		"-i", cmd.KeyFile,
		"-p", strconv.Itoa(cmd.Port),
		"-o", "BatchMode=yes",
		"-o", "IdentitiesOnly=yes",
		"-o", "ConnectTimeout=" + strconv.Itoa(int(e.config.ConnectTimeout.Seconds())),
	}
	if e.config.KnownHostsFile != "" {
		args = append(args,
			"-o", "StrictHostKeyChecking=yes",
			"-o", "UserKnownHostsFile="+e.config.KnownHostsFile,
		)
	} else {
		args = append(args,
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=/dev/null",
		)
	}
	return append(args, cmd.User+"@"+cmd.Host, cmd.Command)
}

// Run executes cmd and returns its combined output.
func (e *BinaryExecutor) Run(ctx context.Context, cmd Command) (string, error) {
	out, err := exec.CommandContext(ctx, e.binary, e.Args(cmd)...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("ssh exited with code %d", exitErr.ExitCode())
		}
		return string(out), fmt.Errorf("run ssh: %w", err)
	}
	return string(out), nil
}
