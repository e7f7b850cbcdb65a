//go:build integration

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisAddr(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port()
}

func TestRun_OfflineRendersStoredSnapshots(t *testing.T) {
	clearEnv(t)
	mock := newMock(t)
	addr := setupRedisAddr(t)
	path := writeConfig(t, mock.URL(), "store:\n  backend: redis\n  redis_addr: \""+addr+"\"\n")

	var online, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config", path}, &online, &stderr); code != 0 {
		t.Fatalf("Online run failed with %d: %s", code, stderr.String())
	}
	requests := mock.RequestCount()

	// offline rendering needs no upstream key
	offlinePath := writeConfigWithKey(t, mock.URL(), "", "store:\n  backend: redis\n  redis_addr: \""+addr+"\"\n")

	var offline bytes.Buffer
	if code := run(context.Background(), []string{"-config", offlinePath, "-offline"}, &offline, &stderr); code != 0 {
		t.Fatalf("Offline run failed with %d: %s", code, stderr.String())
	}

	if offline.String() != online.String() {
		t.Errorf("Offline report differs from online report:\n%s\nvs\n%s", offline.String(), online.String())
	}
	if mock.RequestCount() != requests {
		t.Error("Offline run must not call the upstream")
	}
}
