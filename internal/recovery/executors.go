package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"golang.org/x/crypto/ssh"
)

const sshCommandTimeout = 60 * time.Second

// sshExecutor runs a remediation command on a host over SSH.
type sshExecutor struct {
	dialTimeout time.Duration
}

func (e *sshExecutor) Run(ctx context.Context, cfg *domain.SSHActionConfig) (string, error) {
	if cfg == nil {
		return "", errors.New("ssh action config missing")
	}

	// Request contexts carry no deadline of their own; a remediation
	// command that never returns must not hold the action slot forever.
	ctx, cancel := context.WithTimeout(ctx, sshCommandTimeout)
	defer cancel()

	keyData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return "", fmt.Errorf("parse key: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(port))

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // hosts are operator-declared in config
		Timeout:         e.dialTimeout,
	}

	dialer := &net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake and the command both run over conn; closing it when the
	// context expires unblocks them. ClientConfig.Timeout only covers the
	// dial.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(cfg.Command)
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		return "", fmt.Errorf("run %q: %w (output: %s)", cfg.Command, err, trimmed)
	}
	return trimmed, nil
}

// flyExecutor restarts a Fly.io machine through the Machines API.
type flyExecutor struct {
	token   string
	baseURL string
	http    *http.Client
}

func newFlyExecutor(token string) *flyExecutor {
	return &flyExecutor{
		token:   token,
		baseURL: "https://api.machines.dev/v1",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *flyExecutor) Run(ctx context.Context, cfg *domain.FlyActionConfig) (string, error) {
	if cfg == nil {
		return "", errors.New("fly action config missing")
	}
	if e.token == "" {
		return "", errors.New("fly token not configured")
	}

	endpoint := fmt.Sprintf("%s/apps/%s/machines/%s/restart", e.baseURL, cfg.App, cfg.MachineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("restart machine: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("restart machine: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Sprintf("machine %s restarted", cfg.MachineID), nil
}

// workflowExecutor triggers a GitHub Actions workflow dispatch.
type workflowExecutor struct {
	token   string
	baseURL string
	http    *http.Client
}

func newWorkflowExecutor(token string) *workflowExecutor {
	return &workflowExecutor{
		token:   token,
		baseURL: "https://api.github.com",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *workflowExecutor) Run(ctx context.Context, cfg *domain.WorkflowActionConfig) (string, error) {
	if cfg == nil {
		return "", errors.New("workflow action config missing")
	}
	if e.token == "" {
		return "", errors.New("github token not configured")
	}

	ref := cfg.Ref
	if ref == "" {
		ref = "main"
	}

	endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches", e.baseURL, cfg.Repo, cfg.Workflow)
	payload := strings.NewReader(fmt.Sprintf(`{"ref":%q}`, ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispatch workflow: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("dispatch workflow: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Sprintf("workflow %s dispatched on %s", cfg.Workflow, ref), nil
}
