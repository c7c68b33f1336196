// Package testutil starts throwaway containers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const containerStartupTimeout = 30 * time.Second

// PostgresContainer is a disposable database with its DSN resolved.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer starts a postgres container and waits until it
// accepts connections.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orchon_test"),
		postgres.WithUsername("orchon"),
		postgres.WithPassword("orchon"),
		testcontainers.WithWaitStrategy(
			// The entrypoint restarts the server once during init, so the
			// ready line has to appear twice.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  dsn,
	}, nil
}

// MailpitContainer is a disposable SMTP sink. Delivered mail is inspected
// through the HTTP API on APIHost:APIPort.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

// NewMailpitContainer starts a Mailpit container and resolves its mapped
// SMTP and API ports.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/axllent/mailpit:latest",
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1025/tcp"),
				wait.ForHTTP("/api/v1/info").WithPort("8025/tcp"),
			).WithDeadline(containerStartupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get mailpit host: %w", err)
	}

	smtpPort, err := mappedPort(ctx, container, "1025/tcp")
	if err != nil {
		return nil, err
	}
	apiPort, err := mappedPort(ctx, container, "8025/tcp")
	if err != nil {
		return nil, err
	}

	return &MailpitContainer{
		Container: container,
		SMTPHost:  host,
		SMTPPort:  smtpPort,
		APIHost:   host,
		APIPort:   apiPort,
	}, nil
}

func mappedPort(ctx context.Context, container testcontainers.Container, port nat.Port) (int, error) {
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return 0, fmt.Errorf("map port %s: %w", port, err)
	}
	return mapped.Int(), nil
}
