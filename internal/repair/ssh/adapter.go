// Package ssh runs repair commands on a site's host over SSH.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
)

// Default remote commands per action.
var defaultCommands = map[domain.RepairAction]string{
	domain.RepairActionRestartService: "sudo systemctl restart nginx",
	domain.RepairActionClearCache:     "sync && echo 3 | sudo tee /proc/sys/vm/drop_caches",
	domain.RepairActionDNSFlush:       "sudo resolvectl flush-caches",
}

// Command is one remote execution.
type Command struct {
	Host    string
	Port    int
	User    string
	KeyFile string
	Command string
}

// Executor runs a command on a remote host. The returned output is set even
// when err is not nil.
type Executor interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Adapter implements repair.Adapter for the ssh access method.
type Adapter struct {
	executor Executor
	keyDir   string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithKeyDir sets the directory for temporary key files. Defaults to os.TempDir.
func WithKeyDir(dir string) Option {
	return func(a *Adapter) {
		a.keyDir = dir
	}
}

// NewAdapter creates an SSH adapter that runs commands through executor.
func NewAdapter(executor Executor, opts ...Option) *Adapter {
	a := &Adapter{executor: executor}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Method returns the access method served by the adapter.
func (a *Adapter) Method() domain.AccessMethod {
	return domain.AccessMethodSSH
}

// ResolveCommand returns the remote command for action.
func ResolveCommand(action domain.RepairAction, customCommand string) (string, error) {
	if action == domain.RepairActionCustomCommand || (customCommand != "" && action == "") {
		if strings.TrimSpace(customCommand) == "" {
			return "", errors.New("custom command is empty")
		}
		return customCommand, nil
	}
	if cmd, ok := defaultCommands[action]; ok {
		return cmd, nil
	}
	return "", fmt.Errorf("action %s is not supported over SSH", action)
}

// Repair runs the command for action on the site's host. The private key is
// written to an owner-only temporary file that is removed before Repair returns.
func (a *Adapter) Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, customCommand string) (string, bool) {
	creds := site.Credentials
	switch {
	case creds.SSHHost == "":
		return "SSH host not configured", false
	case creds.SSHUser == "":
		return "SSH user not configured", false
	case creds.SSHPrivateKey == "":
		return "SSH private key not configured", false
	}

	command, err := ResolveCommand(action, customCommand)
	if err != nil {
		return "Invalid SSH repair: " + err.Error(), false
	}

	keyFile, err := writeKey(a.keyDir, creds.SSHPrivateKey)
	if err != nil {
		return fmt.Sprintf("Failed to prepare SSH key: %v", err), false
	}
	defer func() {
		if err := os.Remove(keyFile); err != nil && !os.IsNotExist(err) {
			ctxlog.FromContext(ctx).Error("failed to remove ssh key file", "error", err)
		}
	}()

	port := creds.SSHPort
	if port == 0 {
		port = domain.DefaultSSHPort
	}

	output, err := a.executor.Run(ctx, Command{
		Host:    creds.SSHHost,
		Port:    port,
		User:    creds.SSHUser,
		KeyFile: keyFile,
		Command: command,
	})
	if err != nil {
		if output == "" {
			return fmt.Sprintf("SSH command failed: %v", err), false
		}
		return fmt.Sprintf("SSH command failed: %v\n%s", err, output), false
	}
	return output, true
}

func writeKey(dir, key string) (path string, err error) {
	f, err := os.CreateTemp(dir, "sitewarden-key-*")
	if err != nil {
		return "", fmt.Errorf("create key file: %w", err)
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	if err = f.Chmod(0o600); err != nil {
		return "", fmt.Errorf("chmod key file: %w", err)
	}
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if _, err = f.WriteString(key); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("close key file: %w", err)
	}
	return path, nil
}
