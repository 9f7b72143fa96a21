package exchange_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/exchange"
)

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(dir, "export.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestUnpacker_ExtractsAndRoutes(t *testing.T) {
	tempRoot := t.TempDir()
	importRoot := t.TempDir()
	router := exchange.NewRouter(tempRoot, importRoot, "sess1")
	extractRoot := router.ImportDir()
	require.NoError(t, os.MkdirAll(extractRoot, 0o755))

	zipPath := writeZip(t, extractRoot, map[string]string{
		"goods_1.xml":            "<goods/>",
		"offers.xml":             "<offers/>",
		"import_files/photo.jpg": "JPEGDATA",
	})

	u := exchange.NewUnpacker(zerolog.Nop(), router)
	n, err := u.Unpack(zipPath, extractRoot)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// wypakowane pliki przeszły routing
	assert.FileExists(t, filepath.Join(extractRoot, "goods", "goods_1.xml"))
	assert.FileExists(t, filepath.Join(extractRoot, "offers", "offers.xml"))
	assert.FileExists(t, filepath.Join(extractRoot, "goods", "photo.jpg"))

	// źródłowy zip skasowany
	_, err = os.Stat(zipPath)
	assert.True(t, os.IsNotExist(err))
}

func TestUnpacker_ZipSlipRejected(t *testing.T) {
	tempRoot := t.TempDir()
	importRoot := t.TempDir()
	router := exchange.NewRouter(tempRoot, importRoot, "sess1")
	extractRoot := router.ImportDir()
	require.NoError(t, os.MkdirAll(extractRoot, 0o755))

	zipPath := writeZip(t, extractRoot, map[string]string{
		"../../etc/passpwned": "PWNED",
	})

	u := exchange.NewUnpacker(zerolog.Nop(), router)
	_, err := u.Unpack(zipPath, extractRoot)
	assert.ErrorIs(t, err, exchange.ErrZipSlip)

	// nic nie mogło wylądować poza rootem
	_, statErr := os.Stat(filepath.Join(importRoot, "etc", "passpwned"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(importRoot, "..", "etc", "passpwned"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnpacker_MissingZip(t *testing.T) {
	router := exchange.NewRouter(t.TempDir(), t.TempDir(), "s")
	u := exchange.NewUnpacker(zerolog.Nop(), router)
	_, err := u.Unpack("/nie/ma/takiego.zip", t.TempDir())
	assert.Error(t, err)
}
