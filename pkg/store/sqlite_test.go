package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, maxBytes int) *Client {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	client, err := Open(context.Background(), config.StoreConfig{
		SQLiteDSN:         dsn,
		MaxPartitionBytes: maxBytes,
		AutoMigrate:       true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLoadMissingPartitionReturnsNil(t *testing.T) {
	client := openTestStore(t, 0)

	payload, err := client.Load(context.Background(), PartitionUsers)
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestSaveOverwritesWholePartition(t *testing.T) {
	client := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, client.Save(ctx, PartitionLogs, []byte(`[{"id":"1"}]`)))
	require.NoError(t, client.Save(ctx, PartitionLogs, []byte(`[{"id":"2"}]`)))

	payload, err := client.Load(ctx, PartitionLogs)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"2"}]`, string(payload))
}

func TestSaveEnforcesCapacity(t *testing.T) {
	client := openTestStore(t, 8)

	err := client.Save(context.Background(), PartitionLogs, []byte("0123456789"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCapacityExceeded))

	// The rejected write must leave the partition untouched.
	payload, err := client.Load(context.Background(), PartitionLogs)
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestPartitionsAreIndependent(t *testing.T) {
	client := openTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, client.Save(ctx, PartitionUsers, []byte(`["u"]`)))
	require.NoError(t, client.Save(ctx, PartitionLocations, []byte(`["l"]`)))

	users, err := client.Load(ctx, PartitionUsers)
	require.NoError(t, err)
	require.Equal(t, `["u"]`, string(users))

	locations, err := client.Load(ctx, PartitionLocations)
	require.NoError(t, err)
	require.Equal(t, `["l"]`, string(locations))
}

func TestJSONHelpersRoundTrip(t *testing.T) {
	client := openTestStore(t, 0)
	ctx := context.Background()

	type record struct {
		ID string `json:"id"`
	}

	found, err := LoadJSON(ctx, client, PartitionUsers, &[]record{})
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, SaveJSON(ctx, client, PartitionUsers, []record{{ID: "a"}}))

	var out []record
	found, err = LoadJSON(ctx, client, PartitionUsers, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].ID)
}
