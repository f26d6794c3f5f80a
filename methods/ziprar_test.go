package methods

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func zipNames(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = buf.String()
	}
	return out
}

func TestFilterZipKeepsGeometryOnly(t *testing.T) {
	src := filepath.Join(t.TempDir(), "tractor.zip")
	writeZip(t, src, map[string]string{
		"plot.shp":   "shp",
		"plot.shx":   "shx",
		"plot.dbf":   "dbf",
		"plot.PRJ":   "prj",
		"photo1.jpg": "jpg1",
		"photo2.jpg": "jpg2",
	})

	var out bytes.Buffer
	names, err := FilterZip(src, &out, GeometryExts)
	require.NoError(t, err)
	assert.Len(t, names, 4)

	got := zipNames(t, out.Bytes())
	assert.Equal(t, map[string]string{
		"plot.shp": "shp",
		"plot.shx": "shx",
		"plot.dbf": "dbf",
		"plot.PRJ": "prj",
	}, got)
}

func TestFilterZipTo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.zip")
	writeZip(t, src, map[string]string{"a.jpg": "x"})

	out := filepath.Join(dir, "out.zip")
	names, err := FilterZipTo(src, out, GeometryExts)
	require.NoError(t, err)
	assert.Empty(t, names)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, zipNames(t, data))
}

func TestFilterZipNotAnArchive(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(src, []byte("not a zip"), 0o644))
	_, err := FilterZip(src, &bytes.Buffer{}, GeometryExts)
	assert.Error(t, err)
}

func TestExtractEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.zip")
	writeZip(t, src, map[string]string{
		"data/plot.SHP": "shp",
		"data/plot.dbf": "dbf",
		"data/plot.cpg": "UTF-8",
		"data/img.jpg":  "jpg",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, os.ModePerm))
	n, err := ExtractEntries(src, dest, ProbeExts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.FileExists(t, filepath.Join(dest, "data", "plot.shp"))
	assert.FileExists(t, filepath.Join(dest, "data", "plot.cpg"))
	assert.NoFileExists(t, filepath.Join(dest, "data", "img.jpg"))

	shp := FindShpFile(dest, ".shp")
	require.NotNil(t, shp)
	assert.Equal(t, filepath.Join(dest, "data", "plot.shp"), *shp)
	assert.Nil(t, FindShpFile(dest, ".gdb"))
}

func TestCopyZipEntry(t *testing.T) {
	src := filepath.Join(t.TempDir(), "in.zip")
	writeZip(t, src, map[string]string{"photo1.jpg": "first", "photo2.jpg": "second"})

	var buf bytes.Buffer
	n, err := CopyZipEntry(src, "photo2.jpg", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, "second", buf.String())

	_, err = CopyZipEntry(src, "photo3.jpg", &buf)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRasterFileName(t *testing.T) {
	ts := time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "EXP7_PhotosCopter_20240601_RGB_TIFF.zip", RasterFileName("EXP7", "PhotosCopter", ts, "RGB", "TIFF"))
	assert.Equal(t, "evil_PhotosTractor_20240601_NIR_JPG.zip", RasterFileName("../../evil", "PhotosTractor", ts, "NIR", "JPG"))
	assert.Equal(t, "20240601", DayKey(ts))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-06-01", "2024-06-01T00:00:00Z", "2024-06-01T02:00:00.000+02:00"} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseDate("01.06.2024")
	assert.Error(t, err)
}

func TestExtractEntriesKeepsFolders(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.zip")
	writeZip(t, src, map[string]string{
		"2024/plot.shp": "shp",
		"2024/plot.shx": "shx",
		"2024/plot.dbf": "current",
		"2024/plot.prj": "prj",
		"old/plot.dbf":  "stale",
	})

	dest := filepath.Join(dir, "out")
	n, err := ExtractEntries(src, dest, ProbeExts)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	current, err := os.ReadFile(filepath.Join(dest, "2024", "plot.dbf"))
	require.NoError(t, err)
	assert.Equal(t, "current", string(current))
	stale, err := os.ReadFile(filepath.Join(dest, "old", "plot.dbf"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(stale))
	assert.NoFileExists(t, filepath.Join(dest, "plot.dbf"))

	shp := FindShpFile(dest, ".shp")
	require.NotNil(t, shp)
	assert.Equal(t, filepath.Join(dest, "2024", "plot.shp"), *shp)
}
