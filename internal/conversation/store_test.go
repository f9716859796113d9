package conversation

import (
	"testing"
	"time"
)

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := New(10, time.Minute)
	if _, ok := s.Get("nope"); ok {
		t.Error("Get() on missing key returned ok=true")
	}
	if _, ok := s.Get(""); ok {
		t.Error("Get() on empty key returned ok=true")
	}
}

func TestPutThenGetReturnsLatest(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("telegram:1", []Message{"hello"})
	s.Put("telegram:1", []Message{"hello", "world"})

	got, ok := s.Get("telegram:1")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 2 {
		t.Errorf("Get() = %v, want 2 messages (latest put)", got)
	}
}

func TestPutOnEmptyKeyIsNoOp(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("", []Message{"x"})
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	s := New(2, time.Minute)
	s.Put("a", []Message{"a"})
	s.Put("b", []Message{"b"})
	s.Put("c", []Message{"c"}) // evicts "a"

	if _, ok := s.Get("a"); ok {
		t.Error("Get(a) ok = true, want evicted")
	}
	if _, ok := s.Get("b"); !ok {
		t.Error("Get(b) ok = false, want present")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("Get(c) ok = false, want present")
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	s := New(2, time.Minute)
	s.Put("a", []Message{"a"})
	s.Put("b", []Message{"b"})
	s.Get("a")                 // "a" now most-recently-used
	s.Put("c", []Message{"c"}) // should evict "b", not "a"

	if _, ok := s.Get("b"); ok {
		t.Error("Get(b) ok = true, want evicted")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("Get(a) ok = false, want present (recently touched)")
	}
}

func TestExpiredEntryIsEvictedOnRead(t *testing.T) {
	s := New(10, time.Millisecond)
	fixed := time.Now()
	s.now = func() time.Time { return fixed }
	s.Put("a", []Message{"a"})

	s.now = func() time.Time { return fixed.Add(time.Hour) }
	if _, ok := s.Get("a"); ok {
		t.Error("Get() on expired entry ok = true, want evicted")
	}
	if s.Len() != 0 {
		t.Errorf("Len() after expired read = %d, want 0 (evicted)", s.Len())
	}
}

func TestLenNeverExceedsMax(t *testing.T) {
	s := New(3, time.Minute)
	for i := 0; i < 20; i++ {
		s.Put(string(rune('a'+i)), []Message{i})
		if s.Len() > 3 {
			t.Fatalf("Len() = %d, exceeds max 3", s.Len())
		}
	}
}
