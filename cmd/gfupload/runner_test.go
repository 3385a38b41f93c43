package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/franksops/gfupload/config"
	"github.com/franksops/gfupload/engine"
	"github.com/franksops/gfupload/protocol"
	"github.com/franksops/gfupload/provider"
	"github.com/franksops/gfupload/store"
)

func newTestApp(out io.Writer) *cli.Command {
	runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: out})
	return &cli.Command{
		Name: "gfupload",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: config.DefaultPath},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
		},
		Commands: runner.register(),
	}
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"Authorization: Bearer abc", "X-Trace:1"}, ":")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Trace": "1"}, got)

	got, err = parsePairs(nil, ":")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parsePairs([]string{"no separator"}, ":")
	assert.ErrorIs(t, err, engine.ErrInvalidParameters)
}

func TestParseFields(t *testing.T) {
	got, err := parseFields([]string{"tag=a", "tag=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []engine.FormField{
		{Name: "tag", Value: "a"},
		{Name: "tag", Value: "b"},
		{Name: "empty", Value: ""},
	}, got)

	_, err = parseFields([]string{"=value"})
	assert.Error(t, err)
}

func TestRelativeName(t *testing.T) {
	assert.Equal(t, "", relativeName("/data/a.txt", "/data/a.txt"))
	assert.Equal(t, "sub/b.txt", relativeName("/data", "/data/sub/b.txt"))
	assert.Equal(t, "b.txt", relativeName("/data/", "/data/b.txt"))
}

func TestCollect(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/photos/a.jpg", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/photos/2024/b.jpg", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("n"), 0o644))
	files := provider.NewLocalProviderFs(fs)

	r := NewRunner(RunnerOpts{Logger: log.New(io.Discard)})
	base := engine.Parameters{Protocol: protocol.NameMultipart, Destination: "https://example.com"}

	tasks, err := r.collect(context.Background(), files, []string{"/photos", "/notes.txt"}, base, "upload", false)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Len(t, tasks[0].Files, 2)
	assert.Len(t, tasks[1].Files, 1)

	for _, f := range tasks[0].Files {
		param, _ := f.Property(protocol.PropertyParamName)
		assert.Equal(t, "upload", param)
		remote, ok := f.Property(protocol.PropertyRemoteFileName)
		assert.True(t, ok)
		assert.NotContains(t, remote, "/photos")
	}
	_, ok := tasks[1].Files[0].Property(protocol.PropertyRemoteFileName)
	assert.False(t, ok, "a single file keeps its own name")

	base.Protocol = protocol.NameBinary
	tasks, err = r.collect(context.Background(), files, []string{"/photos"}, base, "file", false)
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "binary uploads carry one file each")

	_, err = r.collect(context.Background(), files, []string{"/missing"}, base, "file", false)
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfupload.toml")
	var out bytes.Buffer

	err := newTestApp(&out).Run(context.Background(), []string{"gfupload", "-c", path, "config", "init"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), path)
	assert.FileExists(t, path)

	err = newTestApp(&out).Run(context.Background(), []string{"gfupload", "-c", path, "config", "init"})
	assert.ErrorIs(t, err, config.ErrConfigExists)
}

func TestUploadCopyAndStatus(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("world!"), 0o644))

	t.Setenv("GFUPLOAD_JOURNAL_PATH", filepath.Join(dir, "journal.db"))
	t.Setenv("GFUPLOAD_LOG_LEVEL", "error")

	var out bytes.Buffer
	err := newTestApp(&out).Run(context.Background(), []string{
		"gfupload", "upload", "--tui=false", "--protocol", "copy", "--dest", dst, src,
	})
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), string(store.StateCompleted))

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	got, err = os.ReadFile(filepath.Join(dst, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world!", string(got))

	out.Reset()
	err = newTestApp(&out).Run(context.Background(), []string{"gfupload", "status", "--json"})
	require.NoError(t, err)

	var records []store.TaskRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, store.StateCompleted, records[0].State)
	assert.Len(t, records[0].CompletedFiles, 2)
	assert.Equal(t, 1, records[0].Attempts)

	out.Reset()
	err = newTestApp(&out).Run(context.Background(), []string{"gfupload", "status", records[0].ID})
	require.NoError(t, err)
	assert.Contains(t, out.String(), records[0].ID)

	err = newTestApp(&out).Run(context.Background(), []string{"gfupload", "status", "unknown"})
	assert.Error(t, err)
}

func TestUploadFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GFUPLOAD_JOURNAL_PATH", filepath.Join(dir, "journal.db"))
	t.Setenv("GFUPLOAD_LOG_LEVEL", "error")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	var out bytes.Buffer
	err := newTestApp(&out).Run(context.Background(), []string{
		"gfupload", "upload", "--tui=false", "--protocol", "copy",
		"--dest", "ftp://nowhere/in", filepath.Join(dir, "a.txt"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 uploads did not complete")
	assert.Contains(t, out.String(), string(store.StateFailed))
}
