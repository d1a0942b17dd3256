package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"frauddwh/internal/blob"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestKeyFor(t *testing.T) {
	cases := []struct {
		path string
		n    int
		want string
	}{
		{"/in/terminals_01032021.xlsx", 0, "terminals_01032021.backup"},
		{"/in/terminals_01032021.xlsx", 2, "terminals_01032021(2).backup"},
		{"transactions_01032021.txt", 1, "transactions_01032021(1).backup"},
		{"noext", 0, "noext.backup"},
	}
	for _, tc := range cases {
		if got := KeyFor(tc.path, tc.n); got != tc.want {
			t.Errorf("KeyFor(%q, %d) = %q, want %q", tc.path, tc.n, got, tc.want)
		}
	}
}

func TestArchiveMovesFilesAndAvoidsCollisions(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	a := New(store, zaptest.NewLogger(t))

	dir := t.TempDir()
	first := writeFile(t, dir, "transactions_01032021.txt", "first")
	if _, err := a.Archive(ctx, "01032021", []string{first}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("source should be removed, stat err = %v", err)
	}

	second := writeFile(t, dir, "transactions_01032021.txt", "second")
	infos, err := a.Archive(ctx, "01032021", []string{second})
	if err != nil {
		t.Fatalf("archive again: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "transactions_01032021(1).backup" {
		t.Fatalf("unexpected infos %+v", infos)
	}
	info, rc, err := store.Get(ctx, "transactions_01032021(1).backup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "second" {
		t.Fatalf("content = %q", b)
	}
	if info.Metadata["batch_date"] != "01032021" || info.Metadata["source_file"] != "transactions_01032021.txt" {
		t.Fatalf("metadata = %+v", info.Metadata)
	}
}

func TestArchiveToFilesystem(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "archive")
	store, err := blob.NewFilesystem(root)
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "passport_blacklist_01032021.xlsx", "pb"),
		writeFile(t, dir, "terminals_01032021.xlsx", "tm"),
	}
	if _, err := New(store, nil).Archive(ctx, "01032021", paths); err != nil {
		t.Fatalf("archive: %v", err)
	}
	for _, name := range []string{"passport_blacklist_01032021.backup", "terminals_01032021.backup"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Fatalf("expected %s in archive: %v", name, err)
		}
	}
}

func TestArchiveMissingSourceFails(t *testing.T) {
	a := New(blob.NewMemory(), nil)
	if _, err := a.Archive(context.Background(), "01032021", []string{filepath.Join(t.TempDir(), "gone.txt")}); err == nil {
		t.Fatalf("expected error for missing source")
	}
}
