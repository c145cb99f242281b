package audit

import (
	"context"
	"testing"
)

func TestNewStoreWithoutDatabaseURL(t *testing.T) {
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := store.(NoopStore); !ok {
		t.Fatalf("store type = %T, want NoopStore", store)
	}

	if err := store.SessionInit(context.Background(), "c1", "Asha", "full"); err != nil {
		t.Fatalf("SessionInit() error = %v", err)
	}
	if err := store.UpstreamReconnect(context.Background(), 1); err != nil {
		t.Fatalf("UpstreamReconnect() error = %v", err)
	}
	store.Close()
}
