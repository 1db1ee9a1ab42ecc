package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a DB client backed by a temporary sqlite file.
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_anchors.sqlite3")
	t.Setenv("ANCHORSYNC_DB_PATH", dbPath)

	client, err := NewDBClient()
	require.NoError(t, err, "failed to create test DB client")
	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	require.NotNil(t, client.DB)
	require.NotNil(t, client.db)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestNewDBClientWithNestedPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = os.Stat(customPath)
	assert.NoError(t, err)
}

func TestCreateAnchorAssignsIdentifier(t *testing.T) {
	client, _ := setupTestDB(t)

	exp := time.Now().Add(7 * 24 * time.Hour)
	rec, err := client.CreateAnchor(models.CloudAnchorRecord{
		Pose:       models.NewPose(1, 2, 3),
		Expiration: &exp,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, models.NewPose(1, 2, 3), rec.Pose)
	require.NotNil(t, rec.Expiration)
	assert.WithinDuration(t, exp, *rec.Expiration, time.Second)

	got, err := client.GetAnchor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Pose, got.Pose)
}

func TestCreateAnchorKeepsProvidedIdentifier(t *testing.T) {
	client, _ := setupTestDB(t)

	rec, err := client.CreateAnchor(models.CloudAnchorRecord{ID: "A1", Pose: models.NewPose(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, "A1", rec.ID)

	_, err = client.CreateAnchor(models.CloudAnchorRecord{ID: "A1"})
	assert.Error(t, err, "duplicate identifiers must be rejected")
}

func TestGetAnchorNotFound(t *testing.T) {
	client, _ := setupTestDB(t)

	_, err := client.GetAnchor("missing")
	assert.True(t, errors.Is(err, ErrAnchorNotFound))
}

func TestGetAnchorsByIDs(t *testing.T) {
	client, _ := setupTestDB(t)

	for _, id := range []string{"A1", "A2", "A3"} {
		_, err := client.CreateAnchor(models.CloudAnchorRecord{ID: id})
		require.NoError(t, err)
	}

	found, err := client.GetAnchorsByIDs([]string{"A1", "A3", "nope"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "A1")
	assert.Contains(t, found, "A3")

	empty, err := client.GetAnchorsByIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteAnchorByID(t *testing.T) {
	client, _ := setupTestDB(t)

	rec, err := client.CreateAnchor(models.CloudAnchorRecord{})
	require.NoError(t, err)

	require.NoError(t, client.DeleteAnchorByID(rec.ID))

	_, err = client.GetAnchor(rec.ID)
	assert.ErrorIs(t, err, ErrAnchorNotFound)

	err = client.DeleteAnchorByID(rec.ID)
	assert.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestListAndCountAnchors(t *testing.T) {
	client, _ := setupTestDB(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"first", "second"} {
		_, err := client.CreateAnchor(models.CloudAnchorRecord{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	list, err := client.ListAnchors()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].ID)
	assert.Equal(t, "second", list[1].ID)

	count, err := client.CountAnchors()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPurgeExpired(t *testing.T) {
	client, _ := setupTestDB(t)

	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	_, err := client.CreateAnchor(models.CloudAnchorRecord{ID: "old", Expiration: &past})
	require.NoError(t, err)
	_, err = client.CreateAnchor(models.CloudAnchorRecord{ID: "fresh", Expiration: &future})
	require.NoError(t, err)
	_, err = client.CreateAnchor(models.CloudAnchorRecord{ID: "forever"})
	require.NoError(t, err)

	removed, err := client.PurgeExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = client.GetAnchor("old")
	assert.ErrorIs(t, err, ErrAnchorNotFound)
	_, err = client.GetAnchor("fresh")
	assert.NoError(t, err)
	_, err = client.GetAnchor("forever")
	assert.NoError(t, err)
}

func TestNilClient(t *testing.T) {
	var client *DBClient

	assert.NoError(t, client.Close())
	_, err := client.CreateAnchor(models.CloudAnchorRecord{})
	assert.Error(t, err)
	_, err = client.ListAnchors()
	assert.Error(t, err)
}
