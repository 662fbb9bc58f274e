//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultPostgresImage = "postgres:16-alpine"
	testDBUser           = "clinic"
	testDBPassword       = "clinic"
	testDBName           = "clinictest"
)

// startPostgresContainer runs a throwaway Postgres through the Docker CLI,
// publishing 5432 on a port Docker picks. CLINIC_TEST_PG_IMAGE overrides the
// image.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	image := os.Getenv("CLINIC_TEST_PG_IMAGE")
	if image == "" {
		image = defaultPostgresImage
	}

	out, err := docker(ctx, "run", "-d", "--rm",
		"--label", "clinic.integration=true",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+testDBUser,
		"-e", "POSTGRES_PASSWORD="+testDBPassword,
		"-e", "POSTGRES_DB="+testDBName,
		image)
	if err != nil {
		return "", nil, err
	}
	id := out
	stop := func() { exec.Command("docker", "rm", "-f", id).Run() }

	// "127.0.0.1:49153"
	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	hostPort = strings.SplitN(hostPort, "\n", 2)[0]

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", testDBUser, testDBPassword, hostPort, testDBName)
	if err := awaitPostgres(ctx, dsn, 45*time.Second); err != nil {
		stop()
		return "", nil, err
	}
	return dsn, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// awaitPostgres retries a single connection until the target database answers
// a query.
func awaitPostgres(ctx context.Context, dsn string, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, dsn)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, `SELECT 1`).Scan(&one)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres at %s not ready after %v: %w", dsn, limit, lastErr)
		case <-tick.C:
		}
	}
}
