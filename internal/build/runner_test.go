package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablegen/internal/core"
	"github.com/JonMunkholm/tablegen/internal/pack"
	"github.com/JonMunkholm/tablegen/internal/sheet"
)

const itemCSV = `id,name,drop_rate,secret
int,string,float,string
allkey,all,client,server
,,,
,,,
1,sword,0.5,s1
2,shield,0.25,s2
`

const skillCSV = `id,power
uint,int
serverkey,client
,
,
10,-3
`

// notes has no key tag and is dropped without error.
const notesCSV = `text
string
server
`

func writeSheets(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func options(in, out string) Options {
	return Options{
		InputDir:  in,
		OutputDir: out,
		Workers:   2,
		CommitID:  "deadbeef",
		Audience:  core.AudienceServer,
		Bytes:     true,
		Lua:       true,
		Pack:      pack.Options{Compress: true, Level: pack.DefaultLevel},
	}
}

type recordingPublisher struct {
	ds   *core.Dataset
	blob []byte
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, ds *core.Dataset, blob []byte) error {
	p.ds, p.blob = ds, blob
	return p.err
}

func TestRunWritesArtifacts(t *testing.T) {
	t.Parallel()

	in := writeSheets(t, map[string]string{"item.csv": itemCSV, "skill.csv": skillCSV, "notes.csv": notesCSV})
	out := filepath.Join(t.TempDir(), "generated")

	// a module of a sheet that no longer exists
	require.NoError(t, os.MkdirAll(filepath.Join(out, LuaDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, LuaDir, "stale.lua"), []byte("return {}"), 0o644))

	pub := &recordingPublisher{}
	res, err := NewRunner(nil, options(in, out), pub).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(out, BlobFile),
		filepath.Join(out, LuaDir, "item.lua"),
		filepath.Join(out, LuaDir, "skill.lua"),
	}, res.Written)
	assert.NoFileExists(t, filepath.Join(out, LuaDir, "stale.lua"))

	blob, err := os.ReadFile(filepath.Join(out, BlobFile))
	require.NoError(t, err)
	assert.Equal(t, res.Blob, blob)

	ds, err := pack.Unpack(blob)
	require.NoError(t, err)
	assert.Equal(t, core.AudienceServer, ds.Audience)
	assert.Equal(t, "deadbeef", ds.CommitID)
	require.Len(t, ds.Tables, 2)

	item, ok := ds.Table("item")
	require.True(t, ok)
	var names []string
	for _, c := range item.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "name", "secret"}, names)

	lua, err := os.ReadFile(filepath.Join(out, LuaDir, "skill.lua"))
	require.NoError(t, err)
	assert.Contains(t, string(lua), `local s_id = { [10] = 1, }`)

	assert.Same(t, res.Dataset, pub.ds)
	assert.Equal(t, res.Blob, pub.blob)
}

func TestRunToggles(t *testing.T) {
	t.Parallel()

	in := writeSheets(t, map[string]string{"item.csv": itemCSV})

	t.Run("bytes only", func(t *testing.T) {
		out := t.TempDir()
		opts := options(in, out)
		opts.Lua = false
		res, err := NewRunner(nil, opts, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(out, BlobFile)}, res.Written)
		assert.Empty(t, res.Modules)
		assert.NoDirExists(t, filepath.Join(out, LuaDir))
	})

	t.Run("lua only", func(t *testing.T) {
		out := t.TempDir()
		opts := options(in, out)
		opts.Bytes = false
		res, err := NewRunner(nil, opts, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(out, LuaDir, "item.lua")}, res.Written)
		assert.NoFileExists(t, filepath.Join(out, BlobFile))
	})

	t.Run("dry run", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "never")
		opts := options(in, out)
		opts.DryRun = true
		pub := &recordingPublisher{}
		res, err := NewRunner(nil, opts, pub).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Written)
		assert.Len(t, res.Modules, 1)
		assert.NotEmpty(t, res.Blob)
		assert.NoDirExists(t, out)
		assert.Nil(t, pub.ds)
	})
}

func TestRunClientAudience(t *testing.T) {
	t.Parallel()

	in := writeSheets(t, map[string]string{"item.csv": itemCSV})
	opts := options(in, t.TempDir())
	opts.Audience = core.AudienceClient
	opts.DryRun = true

	res, err := NewRunner(nil, opts, nil).Run(context.Background())
	require.NoError(t, err)
	item := res.Dataset.Tables[0]
	require.Len(t, item.Columns, 3)
	assert.Equal(t, "drop_rate", item.Columns[2].Name)
}

func TestRunCollectsErrors(t *testing.T) {
	t.Parallel()

	bad := `id,level,flag
int,int,bool
allkey,all,all
,,
,,
x,1,yes
2,two,true
`
	in := writeSheets(t, map[string]string{"bad.csv": bad, "item.csv": itemCSV})
	out := filepath.Join(t.TempDir(), "out")

	_, err := NewRunner(nil, options(in, out), nil).Run(context.Background())
	var batch *core.CompileErrors
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, 3, batch.Len())
	assert.ErrorIs(t, err, core.ErrMalformedScalar)
	assert.ErrorIs(t, err, core.ErrMalformedBool)
	assert.NoDirExists(t, out)
}

func TestRunEmitErrors(t *testing.T) {
	t.Parallel()

	// the only key column is hidden from clients
	serverOnly := `id,name
int,string
serverkey,client
,
,
1,a
`
	in := writeSheets(t, map[string]string{"npc.csv": serverOnly})
	opts := options(in, t.TempDir())
	opts.Audience = core.AudienceClient

	_, err := NewRunner(nil, opts, nil).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrMissingPrimaryKey)

	opts.Lua = false
	_, err = NewRunner(nil, opts, nil).Run(context.Background())
	assert.NoError(t, err)
}

func TestRunPublishError(t *testing.T) {
	t.Parallel()

	in := writeSheets(t, map[string]string{"item.csv": itemCSV})
	pub := &recordingPublisher{err: errors.New("database down")}
	_, err := NewRunner(nil, options(in, t.TempDir()), pub).Run(context.Background())
	assert.ErrorContains(t, err, "database down")
}

func TestWriteCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Write(ctx, t.TempDir(), []Artifact{{Path: BlobFile, Data: []byte{1}}}, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteRejectsEscapingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out := filepath.Join(root, "out")
	for _, path := range []string{"../escaped.lua", filepath.Join(LuaDir, "..", "..", "escaped.lua"), "/tmp/abs.lua"} {
		_, err := Write(context.Background(), out, []Artifact{{Path: path, Data: []byte("return {}")}}, true)
		assert.ErrorIs(t, err, ErrArtifactPath, path)
	}
	assert.NoFileExists(t, filepath.Join(root, "escaped.lua"))
	assert.NoDirExists(t, out)
}

func TestRunRejectsEscapingSheetName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	in := writeSheets(t, map[string]string{
		"x.yaml": "name: ../../escaped\nrows:\n  - [id]\n  - [int]\n  - [allkey]\n  - []\n  - []\n  - [1]\n",
	})
	out := filepath.Join(root, "a", "out")

	_, err := NewRunner(nil, options(in, out), nil).Run(context.Background())
	assert.ErrorIs(t, err, sheet.ErrMalformedSheet)
	assert.NoFileExists(t, filepath.Join(root, "escaped.lua"))
	assert.NoFileExists(t, filepath.Join(root, "a", "escaped.lua"))
}

func TestRunClearsLuaDirWithoutModules(t *testing.T) {
	t.Parallel()

	in := writeSheets(t, map[string]string{"notes.csv": notesCSV})
	out := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(out, LuaDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, LuaDir, "stale.lua"), []byte("return {}"), 0o644))

	res, err := NewRunner(nil, options(in, out), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Modules)
	assert.NoFileExists(t, filepath.Join(out, LuaDir, "stale.lua"))
	assert.DirExists(t, filepath.Join(out, LuaDir))
}
