package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	name, err := s.Save(context.Background(), "product-1.png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "product-1.png", name)

	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	// 同名は上書きしない
	_, err = s.Save(context.Background(), "product-1.png", strings.NewReader("other"))
	assert.Error(t, err)

	require.NoError(t, s.Delete(context.Background(), name))
	_, err = os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(err))

	// 無いファイルの削除はエラーにしない
	assert.NoError(t, s.Delete(context.Background(), name))
}

func TestLocalStorage_Save_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	name, err := s.Save(context.Background(), "../../etc/evil.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "evil.png", name)
	_, err = os.Stat(filepath.Join(dir, "evil.png"))
	assert.NoError(t, err)
}
