package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const itemCSV = `id,name
int,string
allkey,all
,
,
1,sword
2,shield
`

func setup(t *testing.T, sheets map[string]string) (in, out string) {
	t.Helper()
	in, out = t.TempDir(), filepath.Join(t.TempDir(), "generated")
	for name, content := range sheets {
		if err := os.WriteFile(filepath.Join(in, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("TABLEGEN_INPUT_DIR", in)
	t.Setenv("TABLEGEN_OUTPUT_DIR", out)
	t.Setenv("TABLEGEN_COMMIT_ID", "c0ffee")
	t.Setenv("DB_PUBLISH", "false")
	t.Setenv("LOG_LEVEL", "error")
	return in, out
}

func TestRunBuildAndInspect(t *testing.T) {
	_, out := setup(t, map[string]string{"item.csv": itemCSV})

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("build exit = %d, stderr = %s", code, stderr.String())
	}
	for _, f := range []string{"config.bytes", filepath.Join("lua", "item.lua")} {
		if _, err := os.Stat(filepath.Join(out, f)); err != nil {
			t.Errorf("missing artifact %s: %v", f, err)
		}
	}

	stdout.Reset()
	code := run(context.Background(), []string{"inspect", filepath.Join(out, "config.bytes")}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("inspect exit = %d, stderr = %s", code, stderr.String())
	}
	for _, want := range []string{"commit    c0ffee", "audience  server", "table     item (2 rows) id:int name:string"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("inspect output = %q, want %q", stdout.String(), want)
		}
	}
}

func TestRunCheckReportsEveryError(t *testing.T) {
	bad := "id,flag\nint,bool\nallkey,all\n,\n,\nx,maybe\n"
	_, out := setup(t, map[string]string{"bad.csv": bad})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"check"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("check exit = %d, want 1", code)
	}
	msg := stderr.String()
	for _, want := range []string{"Code: CELL004", "2 errors", `"maybe"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("stderr = %q, want %q", msg, want)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("check wrote the output dir: %v", err)
	}
}

func TestRunCheckOK(t *testing.T) {
	setup(t, map[string]string{"item.csv": itemCSV})

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"check"}, &stdout, &stderr); code != 0 {
		t.Fatalf("check exit = %d, stderr = %s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "ok: 1 tables") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunTypes(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"types"}, &stdout, &stderr); code != 0 {
		t.Fatalf("types exit = %d", code)
	}
	for _, want := range []string{"vector2_int", "array_uint", "serverkey"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("types output missing %q", want)
		}
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := [][]string{
		{"frobnicate"},
		{"inspect"},
		{"inspect", "a", "b"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != 2 {
			t.Errorf("run(%q) = %d, want 2", args, code)
		}
	}
}

func TestRunInspectCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.bytes")
	if err := os.WriteFile(path, []byte("not a blob"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"inspect", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("inspect exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "PACK001") {
		t.Errorf("stderr = %q, want PACK001", stderr.String())
	}
}

func TestRunConfigError(t *testing.T) {
	setup(t, nil)
	t.Setenv("TABLEGEN_AUDIENCE", "everyone")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"build"}, &stdout, &stderr); code != 1 {
		t.Fatalf("build exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "TABLEGEN_AUDIENCE") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
