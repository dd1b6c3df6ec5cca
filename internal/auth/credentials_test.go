package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func exerciseStore(t *testing.T, s *Store) {
	t.Helper()

	_, err := s.Load(APIKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(APIKey, "fc-0123456789"))
	require.NoError(t, s.Save(DatabaseURL, "postgres://ctw@localhost/ctw"))

	got, err := s.Load(APIKey)
	require.NoError(t, err)
	assert.Equal(t, "fc-0123456789", got)

	c, err := s.Get(DatabaseURL)
	require.NoError(t, err)
	assert.Equal(t, DatabaseURL, c.Name)
	assert.False(t, c.CreatedAt.IsZero())

	require.NoError(t, s.Save(APIKey, "fc-rotated"))
	got, err = s.Load(APIKey)
	require.NoError(t, err)
	assert.Equal(t, "fc-rotated", got)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DatabaseURL, APIKey}, names)

	require.NoError(t, s.Delete(APIKey))
	require.NoError(t, s.Delete(APIKey), "deleting twice is fine")
	_, err = s.Load(APIKey)
	assert.ErrorIs(t, err, ErrNotFound)

	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DatabaseURL}, names)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	exerciseStore(t, NewKeyringStore())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "credentials")
	s := NewFileStore(dir)
	exerciseStore(t, s)

	info, err := os.Stat(filepath.Join(dir, DatabaseURL+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Contains(t, s.Backend(), dir)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	names, err := NewFileStore(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSave_RejectsBadInput(t *testing.T) {
	s := NewFileStore(t.TempDir())

	assert.Error(t, s.Save("", "x"))
	assert.Error(t, s.Save("../escape", "x"))
	assert.Error(t, s.Save(manifestKey, "x"))
	assert.Error(t, s.Save(APIKey, "   "))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "*********6789", Mask("fc-0123456789"))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "", Mask(""))
}
