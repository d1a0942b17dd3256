package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"frauddwh/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	md := map[string]string{"batch_date": "01032021"}
	if _, err := s.Put(ctx, "a.backup", bytes.NewBufferString("one"), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["batch_date"] = "mutated"
	if _, err := s.Put(ctx, "a.backup", bytes.NewBufferString("two"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, rc, err := s.Get(ctx, "a.backup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "one" || info.Metadata["batch_date"] != "01032021" {
		t.Fatalf("unexpected object %q %+v", b, info)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := s.Delete(ctx, "a.backup"); !ok {
		t.Fatalf("expected delete to report existing object")
	}
	if list, _ := s.List(ctx, ""); len(list) != 0 {
		t.Fatalf("expected empty store, got %+v", list)
	}
}

func TestConcurrentPutsOfOneKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(ctx, "k", bytes.NewBufferString("v"), core.PutOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one put may win, got %d", ok)
	}
}
