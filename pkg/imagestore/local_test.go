package imagestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterImageKeyIsDeterministic(t *testing.T) {
	itemID := uuid.MustParse("7d4f9b3e-9a0b-4c1e-8f55-0e2a8f0d2c11")
	rentalID := uuid.MustParse("2b1f5c77-4e4a-4d41-9e36-1c4f2d7b9a01")
	start := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("UTC+09:00", 9*3600))

	key := AfterImageKey(itemID, rentalID, start)
	assert.Equal(t, itemID.String()+"_"+rentalID.String()+"_20240501/after/after.jpg", key)
	assert.Equal(t, key, AfterImageKey(itemID, rentalID, start))
}

func TestLocalSaveAndRead(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root, "/results")
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "abc/after/after.jpg", []byte("after"))
	require.NoError(t, err)
	assert.Equal(t, "/results/abc/after/after.jpg", ref)

	onDisk, err := os.ReadFile(filepath.Join(root, "abc", "after", "after.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "after", string(onDisk))

	data, err := store.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "after", string(data))

	data, err = store.Read(ctx, "abc/after/after.jpg")
	require.NoError(t, err)
	assert.Equal(t, "after", string(data))
}

func TestLocalSaveOverwrites(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/results")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "k/after.jpg", []byte("first"))
	require.NoError(t, err)
	ref, err := store.Save(ctx, "k/after.jpg", []byte("second"))
	require.NoError(t, err)

	data, err := store.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalReadMissing(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/results")
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "/results/missing/before.jpg")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = store.Read(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLocalKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root, "")
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "../../escape.jpg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "/escape.jpg", ref)

	_, err = os.Stat(filepath.Join(root, "escape.jpg"))
	assert.NoError(t, err)
}

func TestNewSelectsDriver(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Driver: "local", LocalRoot: t.TempDir(), PublicPrefix: "/results"}, config.GCPConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = New(context.Background(), config.StorageConfig{Driver: "s3"}, config.GCPConfig{}, nil)
	assert.Error(t, err)
}

func TestGCSSplitLocalFile(t *testing.T) {
	g := &GCS{bucket: "default"}

	bucket, key := g.split("gs://other/abc/after.jpg")
	assert.Equal(t, "other", bucket)
	assert.Equal(t, "abc/after.jpg", key)

	bucket, key = g.split("abc/before.jpg")
	assert.Equal(t, "default", bucket)
	assert.Equal(t, "abc/before.jpg", key)
}
