package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSQLiteCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kindrid.db")

	db, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	var one int
	require.NoError(t, db.Get(&one, "SELECT 1"))
	require.Equal(t, 1, one)
	require.FileExists(t, path)
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "")
	require.Error(t, err)
}
