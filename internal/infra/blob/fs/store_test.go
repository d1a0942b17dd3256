package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"frauddwh/internal/blob/core"
)

func TestPutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "terminals_01032021.backup", bytes.NewReader([]byte("xlsx")), core.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"batch_date": "01032021"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "terminals_01032021.backup", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := s.Get(ctx, "terminals_01032021.backup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "xlsx" || got.Metadata["batch_date"] != "01032021" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}

	list, err := s.List(ctx, "terminals_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "terminals_01032021.backup" {
		t.Fatalf("unexpected list %+v", list)
	}

	ok, err := s.Delete(ctx, "terminals_01032021.backup")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "terminals_01032021.backup"); ok {
		t.Fatalf("second delete must report missing")
	}
	if _, err := s.Head(ctx, "terminals_01032021.backup"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanKeyErrors(t *testing.T) {
	for _, k := range []string{"", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := cleanKey(k); err == nil {
			t.Fatalf("expected error for key %q", k)
		}
	}
}

func TestListCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.backup.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt sidecar")
	}
}
