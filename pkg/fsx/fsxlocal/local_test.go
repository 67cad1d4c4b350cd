package fsxlocal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Abraxas-365/tenantauth/pkg/fsx"
	"github.com/Abraxas-365/tenantauth/pkg/fsx/fsxlocal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileSystem_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)

	_, err = fs.ReadFile(ctx, "setup/state.json")
	assert.True(t, errors.Is(err, fsx.ErrNotExist))

	require.NoError(t, fs.WriteFile(ctx, "setup/state.json", []byte(`{"v":1}`)))
	require.NoError(t, fs.WriteFile(ctx, "setup/state.json", []byte(`{"v":2}`)))

	data, err := fs.ReadFile(ctx, "setup/state.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	info, err := os.Stat(filepath.Join(fs.GetBasePath(), "setup", "state.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(fs.GetBasePath(), "setup"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	exists, err := fs.Exists(ctx, "setup/state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, fs.DeleteFile(ctx, "setup/state.json"))
	require.NoError(t, fs.DeleteFile(ctx, "setup/state.json"))
}
