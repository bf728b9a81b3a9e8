package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "job-1/abc.html", "text/html", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://job-1/abc.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	got, ok := store.Object("job-1/abc.html")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	got[0] = 'C'
	again, _ := store.Object("job-1/abc.html")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
}

func TestBlobStoreReadError(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	cause := errors.New("boom")
	if _, err := store.PutObject(context.Background(), "p", "", iotest.ErrReader(cause)); !errors.Is(err, cause) {
		t.Fatalf("expected read error, got %v", err)
	}
	if _, ok := store.Object("p"); ok {
		t.Fatal("expected nothing stored after a read error")
	}
}
