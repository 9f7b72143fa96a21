package exchange_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/exchange"
)

func TestRouter_RouteFile(t *testing.T) {
	r := exchange.NewRouter("/tmp/t", "/tmp/i", "s")

	cases := []struct {
		filename string
		want     string
	}{
		{"goods_1.xml", "goods"},
		{"goods.xml", "goods"},
		{"offers_0_1.xml", "offers"},
		{"prices.xml", "prices"},
		{"rests_2.xml", "rests"},
		{"groups.xml", "groups"},
		{"priceLists.xml", "priceLists"},
		{"propertiesGoods.xml", "propertiesGoods"},
		{"propertiesOffers.xml", "propertiesOffers"},
		{"contragents.xml", "contragents"},
		{"storages.xml", "storages"},
		{"units.xml", "units"},
		{"import0_1.xml", "goods"},   // konwencja eksportu CommerceML
		{"offer0_1.xml", "offers"},
		{"photo.jpg", "import_files"},
		{"photo.PNG", "import_files"},
		{"import_files/photo.jpg", "goods"}, // już zroutowana ścieżka obrazka
		{"cokolwiek.xml", ""},
		{"readme.txt", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, r.RouteFile(tc.filename), "filename=%s", tc.filename)
	}
}

func TestRouter_ShouldRoute(t *testing.T) {
	r := exchange.NewRouter("/tmp/t", "/tmp/i", "s")
	assert.True(t, r.ShouldRoute("goods.xml"))
	assert.True(t, r.ShouldRoute("photo.jpg"))
	assert.False(t, r.ShouldRoute("archive.zip"), "zipy zostają w stagingu do rozpakowania")
	assert.False(t, r.ShouldRoute("ARCHIVE.ZIP"))
}

func TestRouter_MoveToImport(t *testing.T) {
	tempRoot := t.TempDir()
	importRoot := t.TempDir()
	r := exchange.NewRouter(tempRoot, importRoot, "sess1")

	src := filepath.Join(tempRoot, "sess1", "goods_1.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("<x/>"), 0o644))

	dst, err := r.MoveToImport("goods_1.xml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(importRoot, "sess1", "goods", "goods_1.xml"), dst)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "źródło ma zniknąć po przeniesieniu")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "<x/>", string(data))
}

func TestRouter_MoveUnrecognizedLandsInRoot(t *testing.T) {
	tempRoot := t.TempDir()
	importRoot := t.TempDir()
	r := exchange.NewRouter(tempRoot, importRoot, "sess1")

	src := filepath.Join(tempRoot, "sess1", "tajemniczy.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("?"), 0o644))

	dst, err := r.MoveToImport("tajemniczy.xml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(importRoot, "sess1", "tajemniczy.xml"), dst)
}

func TestRouter_MoveMissingSource(t *testing.T) {
	r := exchange.NewRouter(t.TempDir(), t.TempDir(), "sess1")
	_, err := r.MoveToImport("nie-ma.xml")
	assert.ErrorIs(t, err, exchange.ErrSourceNotFound)
}
