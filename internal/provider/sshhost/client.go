// Package sshhost probes self-managed hosts over SSH.
package sshhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"golang.org/x/crypto/ssh"
)

const defaultCheckCommand = "uptime"

// Config holds SSH prober configuration.
type Config struct {
	DialTimeout time.Duration
}

// Client runs a check command on hosts over SSH. The command's exit code is
// interpreted with the Nagios plugin convention (0 ok, 1 warning, 2+
// critical).
type Client struct {
	dialTimeout time.Duration
}

// NewClient creates a new SSH prober.
func NewClient(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 8 * time.Second
	}
	return &Client{dialTimeout: cfg.DialTimeout}
}

// Provider returns the provider identifier.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderSSH
}

// Fetch runs the target's check command on its host. Connection and auth
// failures are no-data, not down: our network path to the host is not the
// host's health.
func (c *Client) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	hostCfg := target.Service.Config.SSH
	if hostCfg == nil {
		return nil, nil
	}

	output, exitCode, err := c.runCheck(ctx, hostCfg)
	if err != nil {
		slog.Debug("ssh check unreachable",
			"host", hostCfg.Host,
			"service_id", target.Service.ID,
			"error", err,
		)
		return nil, nil
	}

	message := output
	if message == "" {
		message = fmt.Sprintf("check exited %d", exitCode)
	}

	return &provider.State{
		Observations: []provider.Observation{{
			Status:  status.NormalizeSSHCheck(exitCode),
			Message: message,
			Meta: map[string]any{
				"host":      hostCfg.Host,
				"exit_code": exitCode,
			},
		}},
	}, nil
}

// runCheck connects, runs the command and returns its output and exit code.
// The returned error covers transport problems only; a non-zero exit comes
// back as (output, code, nil).
func (c *Client) runCheck(ctx context.Context, cfg *domain.SSHConfig) (string, int, error) {
	clientConfig, err := c.clientConfig(cfg)
	if err != nil {
		return "", 0, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(port))

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", 0, fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake and the command both run over conn; closing it when the
	// context expires unblocks them. ClientConfig.Timeout only covers the
	// dial.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return "", 0, fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", 0, fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = session.Close() }()

	command := cfg.CheckCommand
	if command == "" {
		command = defaultCheckCommand
	}

	output, err := session.CombinedOutput(command)
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return trimmed, exitErr.ExitStatus(), nil
		}
		return "", 0, fmt.Errorf("run %q: %w", command, err)
	}

	return trimmed, 0, nil
}

func (c *Client) clientConfig(cfg *domain.SSHConfig) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // hosts are operator-declared in config
		Timeout:         c.dialTimeout,
	}, nil
}
