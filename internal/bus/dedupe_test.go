package bus

import (
	"testing"
	"time"
)

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache(time.Minute, 0)

	if d.IsDuplicate("m1") {
		t.Error("first sighting should not be a duplicate")
	}
	if !d.IsDuplicate("m1") {
		t.Error("second sighting should be a duplicate")
	}
	if d.IsDuplicate("m2") {
		t.Error("different key should not be a duplicate")
	}
	if d.IsDuplicate("") || d.IsDuplicate("") {
		t.Error("empty key is never a duplicate")
	}
	if n := d.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestDedupeCache_Expiry(t *testing.T) {
	d := NewDedupeCache(20*time.Millisecond, 10)
	d.IsDuplicate("m1")
	time.Sleep(60 * time.Millisecond)
	if d.IsDuplicate("m1") {
		t.Error("expired key should not be a duplicate")
	}
}

func TestDedupeCache_Eviction(t *testing.T) {
	d := NewDedupeCache(time.Minute, 2)
	d.IsDuplicate("a")
	d.IsDuplicate("b")
	d.IsDuplicate("c")
	if d.IsDuplicate("a") {
		t.Error("oldest key should have been evicted")
	}
}

func TestDedupeCache_Forget(t *testing.T) {
	d := NewDedupeCache(time.Minute, 0)
	d.IsDuplicate("m1")
	d.Forget("m1")
	if d.IsDuplicate("m1") {
		t.Error("forgotten key should not be a duplicate")
	}
	if !d.IsDuplicate("m1") {
		t.Error("key should be remembered again after its next sighting")
	}
	d.Forget("")
	d.Forget("never-seen")
}
