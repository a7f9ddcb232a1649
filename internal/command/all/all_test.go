package all

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/keshon/codi/internal/command"
	"github.com/keshon/codi/internal/fs"
	"github.com/keshon/codi/internal/store"
)

func setup(t *testing.T) (*fs.MemoryFS, func(args ...string) (int, string, string)) {
	t.Helper()
	mfs := fs.NewMemoryFS()
	root := "/cli/" + t.Name()
	for _, d := range []string{root + "/src/docs", root + "/backup"} {
		if err := mfs.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	cfg := "destination: backup\nsources: [src]\njournal: false\nlog_level: error\n"
	if err := mfs.WriteFile(root+"/codi.yaml", []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := mfs.WriteFile(root+"/src/docs/a.txt", []byte("alpha"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run := func(args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		r := &command.Runner{FS: mfs, Stdout: &stdout, Stderr: &stderr}
		args = append(args, "--config", root+"/codi.yaml")
		code := r.Run(context.Background(), args)
		return code, stdout.String(), stderr.String()
	}
	return mfs, run
}

func TestBackupThenInspect(t *testing.T) {
	_, run := setup(t)

	code, out, errOut := run("backup", "--no-progress")
	if code != 0 {
		t.Fatalf("backup exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "Record ") {
		t.Fatalf("backup output = %q", out)
	}

	code, out, errOut = run("history")
	if code != 0 {
		t.Fatalf("history exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "base") {
		t.Fatalf("history output = %q", out)
	}

	at := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	code, out, errOut = run("peek", at, "--select", "/cli/"+t.Name()+"/src/docs")
	if code != 0 {
		t.Fatalf("peek exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "/src/docs/a.txt") {
		t.Fatalf("peek output = %q", out)
	}

	code, out, errOut = run("verify")
	if code != 0 {
		t.Fatalf("verify exit %d: %s\n%s", code, errOut, out)
	}
	if !strings.Contains(out, "1 files ok, 0 problems") {
		t.Fatalf("verify output = %q", out)
	}
}

func TestMissingConfigFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := &command.Runner{FS: fs.NewMemoryFS(), Stdout: &stdout, Stderr: &stderr}
	if code := r.Run(context.Background(), []string{"history", "--config", "/nowhere/codi.yaml"}); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}

func TestHelpListsCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := &command.Runner{FS: fs.NewMemoryFS(), Stdout: &stdout, Stderr: &stderr}
	if code := r.Run(context.Background(), nil); code != 0 {
		t.Fatalf("exit = %d: %s", code, stderr.String())
	}
	for _, name := range []string{"backup", "peek", "recover", "history", "verify", "journal", "watch"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("help output lacks %s", name)
		}
	}
}

func TestReadersRefuseUnfinishedMerge(t *testing.T) {
	mfs, run := setup(t)
	if code, _, errOut := run("backup", "--no-progress"); code != 0 {
		t.Fatalf("backup exit %d: %s", code, errOut)
	}
	st, err := store.New(mfs, "/cli/"+t.Name()+"/backup", store.Dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.WriteIntent(store.Intent{Base: "20240301T120000", Update: "20240301T120100"}); err != nil {
		t.Fatalf("write intent: %v", err)
	}

	at := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	for _, args := range [][]string{{"peek", at}, {"recover", at, "--all", "--dry-run"}, {"history"}, {"verify"}} {
		code, _, errOut := run(args...)
		if code != 1 || !strings.Contains(errOut, "run backup to finish it") {
			t.Errorf("%s: exit %d, stderr %q", args[0], code, errOut)
		}
	}
}
