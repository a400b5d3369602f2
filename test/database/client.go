// Package database holds integration tests for the persistence layer and
// the helper that boots a migrated, schema-isolated test client.
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/database"
	"github.com/weaveai/weaveai/test/util"
)

// NewTestClient creates a migrated database client on an isolated schema.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: uses a shared testcontainer.
// Schema drop and pool close are handled via t.Cleanup.
func NewTestClient(t *testing.T) *database.Client {
	ctx := context.Background()

	// Schema-scoped connection string; the embedded migrations and the
	// serving pool both run inside the per-test schema.
	dsn := util.SetupTestSchema(t)

	client, err := database.NewClientFromDSN(ctx, dsn, "test")
	require.NoError(t, err)

	t.Cleanup(client.Close)
	return client
}
