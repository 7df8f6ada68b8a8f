package keyring

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestPasswordLifecycle(t *testing.T) {
	keyring.MockInit()

	if HasPassword("vault-1", "alice") {
		t.Fatal("empty keyring reports a password")
	}
	if _, err := GetPassword("vault-1", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	if err := SavePassword("vault-1", "alice", []byte("Tr0ub4dor&3")); err != nil {
		t.Fatalf("SavePassword failed: %v", err)
	}
	if !HasPassword("vault-1", "alice") {
		t.Error("saved password not found")
	}
	if HasPassword("vault-2", "alice") || HasPassword("vault-1", "bob") {
		t.Error("passwords must be scoped to vault and user")
	}

	got, err := GetPassword("vault-1", "alice")
	if err != nil {
		t.Fatalf("GetPassword failed: %v", err)
	}
	if string(got) != "Tr0ub4dor&3" {
		t.Errorf("got %q", got)
	}

	if err := DeletePassword("vault-1", "alice"); err != nil {
		t.Fatalf("DeletePassword failed: %v", err)
	}
	if HasPassword("vault-1", "alice") {
		t.Error("password still present after delete")
	}
	if err := DeletePassword("vault-1", "alice"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}
