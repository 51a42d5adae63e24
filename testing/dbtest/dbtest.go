// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package dbtest starts postgres servers for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gridguyz/patcher/internal/db/common"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"
)

// EnvTestingPgUrl points the tests at an existing server instead of a
// container.
const EnvTestingPgUrl = "PATCHER_TESTING_PG_URL"

// DefaultImage is the postgres image started when no server is configured.
const DefaultImage = "postgres:15"

var mx sync.Mutex

const letterBytes = "abcdefghijklmnopqrstuvwxyz"

func randStr(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}

// RandomDatabaseName returns a database name unlikely to collide with other
// test runs on a shared server.
func RandomDatabaseName() string {
	return fmt.Sprintf("patcher_test_%s", randStr(16))
}

// StartPostgres returns the url of a postgres server. When
// PATCHER_TESTING_PG_URL is set that server is used, otherwise a container
// is started with dockertest. The returned cleanup removes whatever was
// created.
func StartPostgres(opt ...Option) (cleanup func() error, retURL string, err error) {
	mx.Lock()
	defer mx.Unlock()
	noop := func() error { return nil }
	opts := GetOpts(opt...)

	var serverURL string
	cleanup = noop
	if serverURL = os.Getenv(EnvTestingPgUrl); serverURL == "" {
		pool, err := dockertest.NewPool("")
		if err != nil {
			return noop, "", fmt.Errorf("could not connect to docker: %w", err)
		}
		if err := pool.Client.Ping(); err != nil {
			return noop, "", fmt.Errorf("could not connect to docker: %w", err)
		}

		repository, tag, err := splitImage(opts.withContainerImage)
		if err != nil {
			return noop, "", fmt.Errorf("error parsing reference: %w", err)
		}
		resource, err := pool.RunWithOptions(&dockertest.RunOptions{
			Repository: repository,
			Tag:        tag,
			Env:        []string{"POSTGRES_PASSWORD=password", "POSTGRES_DB=patcher"},
			Cmd:        []string{"-c", "jit=off"},
		})
		if err != nil {
			return noop, "", fmt.Errorf("could not start resource: %w", err)
		}
		cleanup = func() error {
			return cleanupDockerResource(pool, resource)
		}
		serverURL = fmt.Sprintf("postgres://postgres:password@%s/patcher?sslmode=disable", resource.GetHostPort("5432/tcp"))
	}

	ctx := context.Background()
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	db, err := common.Open(ctx, serverURL, common.WithBackOff(b))
	if err != nil {
		_ = cleanup()
		return noop, "", fmt.Errorf("could not ping postgres on startup: %w", err)
	}
	defer db.Close()

	if opts.withDatabase == "" {
		return cleanup, serverURL, nil
	}

	name := pgx.Identifier{opts.withDatabase}.Sanitize()
	if _, err := db.ExecContext(ctx, fmt.Sprintf("create database %s", name)); err != nil {
		_ = cleanup()
		return noop, "", fmt.Errorf("could not create test database: %w", err)
	}
	serverCleanup := cleanup
	cleanup = func() error {
		if err := dropDatabase(serverURL, opts.withDatabase); err != nil {
			return err
		}
		return serverCleanup()
	}
	dbURL, err := replaceDatabase(serverURL, opts.withDatabase)
	if err != nil {
		_ = cleanup()
		return noop, "", err
	}
	return cleanup, dbURL, nil
}

const killconns = `
select
  pg_terminate_backend(pg_stat_activity.pid)
from
  pg_stat_activity
where pg_stat_activity.datname = $1
  and pid <> pg_backend_pid();
`

func dropDatabase(serverURL, dbname string) error {
	if dbname == "" {
		return fmt.Errorf("empty dbname")
	}
	db, err := common.SqlOpen(common.Postgres, serverURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(killconns, dbname); err != nil {
		return err
	}
	if _, err := db.Exec(fmt.Sprintf("drop database %s", pgx.Identifier{dbname}.Sanitize())); err != nil {
		return err
	}
	return nil
}

// replaceDatabase swaps the database of a postgres url.
func replaceDatabase(dbURL, dbname string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("could not parse database url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("database url must use the postgres:// form")
	}
	u.Path = "/" + dbname
	return u.String(), nil
}

// cleanupDockerResource will clean up the dockertest resources (postgres)
func cleanupDockerResource(pool *dockertest.Pool, resource *dockertest.Resource) error {
	var err error
	for i := 0; i < 10; i++ {
		err = pool.Purge(resource)
		if err == nil {
			return nil
		}
	}
	if strings.Contains(err.Error(), "No such container") {
		return nil
	}
	return fmt.Errorf("failed to cleanup local container: %s", err)
}

// splitImage separates an image reference into repo and tag. A bare
// "postgres" uses the tag of DefaultImage.
func splitImage(image string) (string, string, error) {
	separated := strings.Split(image, ":")
	switch len(separated) {
	case 1:
		if separated[0] == "postgres" {
			_, tag, _ := strings.Cut(DefaultImage, ":")
			return separated[0], tag, nil
		}
		return "", "", fmt.Errorf("valid reference format is repo:tag, if"+
			" no tag provided then repo must be postgres, got: %s", image)
	case 2:
		return separated[0], separated[1], nil
	default:
		return "", "", fmt.Errorf("valid reference format is repo:tag, got: %s", image)
	}
}
