package reservation

import (
	"context"
	"testing"
)

func TestFileStorePutGetDeleteScan(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "urn:uuid:missing"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	if err := store.Put(ctx, "urn:uuid:one", []byte(`{"globalid":"urn:uuid:one"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "urn:uuid:two", []byte(`{"globalid":"urn:uuid:two"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, ok, err := store.Get(ctx, "urn:uuid:one")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(data) != `{"globalid":"urn:uuid:one"}` {
		t.Fatalf("unexpected data: %s", data)
	}

	rows, err := store.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	deleted, err := store.Delete(ctx, "urn:uuid:one")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := store.Delete(ctx, "urn:uuid:one"); err != nil || deleted {
		t.Fatalf("second Delete should report false, got %v (err=%v)", deleted, err)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	rows, err = store.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan after DeleteAll: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty store after DeleteAll, got %d rows", len(rows))
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(ctx, "urn:uuid:persisted", []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	defer reopened.Close()

	data, ok, err := reopened.Get(ctx, "urn:uuid:persisted")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data after reopen: %s", data)
	}
}
