// Package testinfra provides Postgres and Redis for live tests. An instance
// named by the environment is used when present; otherwise a throwaway
// container is started and removed when the test ends.
package testinfra

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Endpoint struct {
	Host string
	Port int
}

type Postgres struct {
	Endpoint
	User     string
	Password string
	Name     string
}

// StartPostgres reads DB_HOST, DB_PORT, DB_USER_NAME, DB_PASSWORD and DB_NAME,
// or starts postgres:15-alpine when DB_HOST is unset.
func StartPostgres(t *testing.T) Postgres {
	t.Helper()
	skipShort(t)

	if host := os.Getenv("DB_HOST"); host != "" {
		return Postgres{
			Endpoint: Endpoint{Host: host, Port: envInt("DB_PORT", 5432)},
			User:     envString("DB_USER_NAME", "user"),
			Password: envString("DB_PASSWORD", "password"),
			Name:     envString("DB_NAME", "fern_test"),
		}
	}

	pg := Postgres{User: "user", Password: "password", Name: "fern_test"}
	pg.Endpoint = start(t, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pg.User,
			"POSTGRES_PASSWORD": pg.Password,
			"POSTGRES_DB":       pg.Name,
		},
		// postgres logs ready twice, once for the init server
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")
	return pg
}

// StartRedis reads REDIS_HOST and REDIS_PORT, or starts redis:7-alpine when
// REDIS_HOST is unset.
func StartRedis(t *testing.T) Endpoint {
	t.Helper()
	skipShort(t)

	if host := os.Getenv("REDIS_HOST"); host != "" {
		return Endpoint{Host: host, Port: envInt("REDIS_PORT", 6379)}
	}

	return start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
}

func start(t *testing.T, req testcontainers.ContainerRequest, port string) Endpoint {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}
	return Endpoint{Host: host, Port: mapped.Int()}
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping live test in short mode")
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
