package uploads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveReaderUniquePaths(t *testing.T) {
	spool, err := NewSpool(t.TempDir(), 0)
	require.NoError(t, err)

	a, err := spool.SaveReader("submission.csv", strings.NewReader("a"))
	require.NoError(t, err)
	defer a.Release()
	b, err := spool.SaveReader("submission.csv", strings.NewReader("b"))
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
	assert.Equal(t, spool.Dir, filepath.Dir(a.Path))
	assert.Equal(t, int64(1), a.Size)

	content, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "a", string(content))
}

func TestSaveReaderExtension(t *testing.T) {
	spool, err := NewSpool(t.TempDir(), 0)
	require.NoError(t, err)

	for name, want := range map[string]string{
		"preds.CSV":  ".csv",
		"preds.xlsx": ".xlsx",
		"preds.txt":  ".csv",
		"preds":      ".csv",
		"":           ".csv",
	} {
		u, err := spool.SaveReader(name, strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, want, filepath.Ext(u.Path), name)
		assert.Equal(t, name, u.OriginalName)
		u.Release()
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	spool, err := NewSpool(t.TempDir(), 0)
	require.NoError(t, err)

	u, err := spool.SaveReader("s.csv", strings.NewReader("data"))
	require.NoError(t, err)

	u.Release()
	_, err = os.Stat(u.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NotPanics(t, u.Release)
}

func TestSaveReaderTooLarge(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir, 4)
	require.NoError(t, err)

	_, err = spool.SaveReader("s.csv", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	// No deja archivos a medio escribir
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	u, err := spool.SaveReader("s.csv", strings.NewReader("1234"))
	require.NoError(t, err)
	u.Release()
}

func TestNewSpoolCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	_, err := NewSpool(dir, 0)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
