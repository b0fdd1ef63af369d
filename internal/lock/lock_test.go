package lock

import (
	"encoding/json"
	"testing"
)

type account struct {
	Flags uint32 `json:"flags"`
}

func TestLock_Unlocked(t *testing.T) {
	l := Unlocked(account{Flags: 1})
	if l.IsLocked() {
		t.Fatal("Unlocked() should not be locked")
	}
	if v, ok := l.Get(); !ok || v.Flags != 1 {
		t.Errorf("Get() = %v, %v", v, ok)
	}
	if _, ok := l.AsLocked(); ok {
		t.Error("AsLocked() should fail when unlocked")
	}
	if _, ok := l.Unlock(); ok {
		t.Error("Unlock() on unlocked should be a no-op")
	}
}

func TestLock_Gating(t *testing.T) {
	l := Unlocked(account{})
	v, ok := l.Lock()
	if !ok {
		t.Fatal("Lock() on unlocked should succeed")
	}
	v.Flags = 7

	if _, ok := l.Get(); ok {
		t.Error("Get() should fail when locked")
	}
	if v, ok := l.AsLocked(); !ok || v.Flags != 7 {
		t.Errorf("AsLocked() = %v, %v", v, ok)
	}
	if _, ok := l.Lock(); ok {
		t.Error("Lock() on locked should be a no-op")
	}
	if _, ok := l.GetMaybeForced(false); ok {
		t.Error("GetMaybeForced(false) should fail when locked")
	}
	if v, ok := l.GetMaybeForced(true); !ok || v.Flags != 7 {
		t.Error("GetMaybeForced(true) should bypass the lock")
	}
	if l.AsInnerUnchecked().Flags != 7 {
		t.Error("AsInnerUnchecked() should see through the lock")
	}

	if _, ok := l.Unlock(); !ok {
		t.Fatal("Unlock() on locked should succeed")
	}
	if _, ok := l.Get(); !ok {
		t.Error("Get() should succeed after Unlock()")
	}
	if _, ok := l.AsLockedMaybeForced(false); ok {
		t.Error("AsLockedMaybeForced(false) should fail when unlocked")
	}
	if _, ok := l.AsLockedMaybeForced(true); !ok {
		t.Error("AsLockedMaybeForced(true) should always succeed")
	}
}

func TestLock_Force(t *testing.T) {
	l := Locked(account{})
	l.ForceLock()
	if !l.IsLocked() {
		t.Error("ForceLock() should keep it locked")
	}
	l.ForceUnlock()
	l.ForceUnlock()
	if l.IsLocked() {
		t.Error("ForceUnlock() should unlock")
	}
}

func TestLock_JSON(t *testing.T) {
	tests := []struct {
		name string
		lock *Lock[account]
		want string
	}{
		{"unlocked", Unlocked(account{Flags: 3}), `{"flags":3}`},
		{"locked", Locked(account{Flags: 3}), `{"locked":true,"flags":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.lock)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
			var back Lock[account]
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back.IsLocked() != tt.lock.IsLocked() || back.AsInnerUnchecked().Flags != 3 {
				t.Errorf("roundtrip = %+v", back)
			}
		})
	}

	data, err := json.Marshal(Locked(struct{}{}))
	if err != nil || string(data) != `{"locked":true}` {
		t.Errorf("Marshal(empty locked) = %s, %v", data, err)
	}
}
