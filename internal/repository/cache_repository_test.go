package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "config:app", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "config:app", map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "config:app", "session:u-1"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}

func TestCacheRepositoryNamespacesKeys(t *testing.T) {
	assert.Equal(t, "incident-portal:session:u-1", namespacedKey("session:u-1"))
}
