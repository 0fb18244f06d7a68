package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/coreauthz/coreauthz"
	"github.com/coreauthz/coreauthz/internal/conformance"
)

var (
	databaseURL string
	storage     *Storage
)

func TestMain(m *testing.M) {
	var (
		pool     *dockertest.Pool
		resource *dockertest.Resource
		err      error
	)

	databaseURL = os.Getenv("TEST_POSTGRES_DATABASE_URL")

	if databaseURL == "" {
		pool, err = dockertest.NewPool("")
		if err != nil {
			log.Fatalf("could not connect to docker: %s", err)
		}

		resource, err = pool.RunWithOptions(&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        "15.4",
			Env: []string{
				"POSTGRES_PASSWORD=coreauthz",
				"POSTGRES_USER=coreauthz",
				"POSTGRES_DB=coreauthz",
			},
		}, func(hc *docker.HostConfig) {
			hc.AutoRemove = true
			hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
		if err != nil {
			log.Fatalf("could not start resource: %s", err)
		}
		_ = resource.Expire(300)

		hostAndPort := resource.GetHostPort("5432/tcp")
		databaseURL = fmt.Sprintf("postgres://coreauthz:coreauthz@%s/coreauthz?sslmode=disable", hostAndPort)

		pool.MaxWait = 120 * time.Second
		if err = pool.Retry(func() error {
			db, err := sql.Open("pgx", databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Ping()
		}); err != nil {
			log.Fatalf("could not connect to postgres: %s", err)
		}
	}

	if err := RunMigrations(databaseURL); err != nil {
		log.Fatalf("could not migrate db: %s", err)
	}

	storage, err = New(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("storage creation failed: %v", err)
	}

	code := m.Run()

	storage.Close()
	if pool != nil {
		if err := pool.Purge(resource); err != nil {
			log.Fatalf("could not purge resource: %s", err)
		}
	}
	os.Exit(code)
}

func TestPostgresTupleRoundTrip(t *testing.T) {
	ctx := context.Background()
	tup := coreauthz.TupleString("doc:readme#viewer@user:alice")

	require.NoError(t, storage.InsertTuple(ctx, tup))

	found, ok, err := storage.FindDirectTuple(ctx, "doc", "readme", "viewer", "user", "alice", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tup, found)

	deleted, err := storage.DeleteTuple(ctx, tup)
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok, err = storage.FindDirectTuple(ctx, "doc", "readme", "viewer", "user", "alice", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostgresConditionalTuple(t *testing.T) {
	ctx := context.Background()
	tup := coreauthz.Tuple{
		ObjectType: "doc", ObjectID: "budget", Relation: "viewer",
		SubjectType: "user", SubjectID: "bob",
		ConditionName:    "business_hours",
		ConditionContext: map[string]any{"day": "monday"},
	}
	require.NoError(t, storage.InsertTuple(ctx, tup))
	defer storage.DeleteTuple(ctx, tup)

	found, ok, err := storage.FindDirectTuple(ctx, "doc", "budget", "viewer", "user", "bob", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "business_hours", found.ConditionName)
	require.Equal(t, "monday", found.ConditionContext["day"])
}

func TestPostgresRelationConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user", "user:*"},
		ImpliedBy:               []string{"editor"},
		TupleToUserset: []coreauthz.TupleToUsersetRule{
			{Tupleset: "parent", ComputedUserset: "viewer"},
		},
	}
	require.NoError(t, storage.UpsertRelationConfig(ctx, "doc", "viewer", cfg))

	got, ok, err := storage.FindRelationConfig(ctx, "doc", "viewer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg.DirectlyAssignableTypes, got.DirectlyAssignableTypes)
	require.Equal(t, cfg.ImpliedBy, got.ImpliedBy)
	require.Equal(t, cfg.TupleToUserset, got.TupleToUserset)

	deleted, err := storage.DeleteRelationConfig(ctx, "doc", "viewer")
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestPostgresConditionDefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	def := coreauthz.ConditionDefinition{
		Name:       "business_hours",
		Parameters: map[string]coreauthz.ParamType{"day": coreauthz.ParamString},
		Expression: `day in ["monday", "tuesday", "wednesday", "thursday", "friday"]`,
	}
	require.NoError(t, storage.UpsertConditionDefinition(ctx, def))

	got, ok, err := storage.FindConditionDefinition(ctx, "business_hours")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, def, got)

	deleted, err := storage.DeleteConditionDefinition(ctx, "business_hours")
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestPostgresConformance(t *testing.T) {
	ctx := context.Background()
	fixture, err := New(ctx, databaseURL)
	require.NoError(t, err)
	defer fixture.Close()

	require.NoError(t, conformance.Load(ctx, fixture))
	conformance.RunAll(t, fixture)
}

func TestPostgresListCandidateObjectIDs(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, storage.InsertTuple(ctx, coreauthz.TupleString("folder:a#viewer@user:alice")))
	require.NoError(t, storage.InsertTuple(ctx, coreauthz.TupleString("folder:b#viewer@user:alice")))
	defer storage.DeleteTuple(ctx, coreauthz.TupleString("folder:a#viewer@user:alice"))
	defer storage.DeleteTuple(ctx, coreauthz.TupleString("folder:b#viewer@user:alice"))

	ids, err := storage.ListCandidateObjectIDs(ctx, "folder")
	require.NoError(t, err)
	require.Contains(t, ids, "a")
	require.Contains(t, ids, "b")
}
