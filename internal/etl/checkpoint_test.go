package etl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCheckpoint_RoundTripsCursorTypes(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name   string
		cursor interface{}
	}{
		{"int", int64(4200)},
		{"bigint", int64(9007199254740993)},
		{"string", "contact0042@example.com"},
		{"time", ts},
		{"objectid", oid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cp.json")
			require.NoError(t, SaveCheckpoint(path, Checkpoint{Job: "emails", Cursor: tt.cursor, Pages: 3, Total: 300}))

			cp, err := LoadCheckpoint(path, "emails")
			require.NoError(t, err)
			require.NotNil(t, cp)
			assert.Equal(t, tt.cursor, cp.Cursor)
			assert.Equal(t, 3, cp.Pages)
			assert.Equal(t, int64(300), cp.Total)
			assert.False(t, cp.UpdatedAt.IsZero())
		})
	}
}

func TestCheckpoint_MissingFileOrOtherJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp, err := LoadCheckpoint(path, "emails")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, SaveCheckpoint(path, Checkpoint{Job: "cleanup-emails", Cursor: int64(1)}))
	cp, err = LoadCheckpoint(path, "emails")
	require.NoError(t, err)
	assert.Nil(t, cp)

	cp, err = LoadCheckpoint("", "emails")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpoint_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadCheckpoint(path, "emails")
	assert.Error(t, err)
}

func TestRemoveCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, SaveCheckpoint(path, Checkpoint{Job: "emails", Cursor: int64(1)}))

	require.NoError(t, RemoveCheckpoint(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, RemoveCheckpoint(path))
	assert.NoError(t, RemoveCheckpoint(""))
}
