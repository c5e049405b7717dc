package cell

import "testing"

func TestBatchCoalescesWrites(t *testing.T) {
	first := NewSource("Ada")
	last := NewSource("Byron")
	full := Map(func() string { return first.Get() + " " + last.Get() })

	deliveries := 0
	full.Watch(func(string) { deliveries++ })

	Batch(func() {
		first.Set("Grace")
		last.Set("Hopper")
	})

	if deliveries != 1 {
		t.Errorf("watcher delivered %d times for one batch, want 1", deliveries)
	}
	if got := full.Get(); got != "Grace Hopper" {
		t.Errorf("Get() = %q, want %q", got, "Grace Hopper")
	}
}

func TestBatchValuesVisibleInside(t *testing.T) {
	s := NewSource(1)

	Batch(func() {
		s.Set(2)
		if got := s.Peek(); got != 2 {
			t.Errorf("inside batch, Peek() = %d, want 2", got)
		}
	})
}

func TestBatchNotificationDeferredUntilEnd(t *testing.T) {
	s := NewSource(1)

	calls := 0
	s.Watch(func(int) { calls++ })

	Batch(func() {
		s.Set(2)
		if calls != 0 {
			t.Errorf("watcher delivered %d times inside batch, want 0", calls)
		}
	})

	if calls != 1 {
		t.Errorf("watcher delivered %d times after batch, want 1", calls)
	}
}

func TestBatchNesting(t *testing.T) {
	s := NewSource(0)

	calls := 0
	s.Watch(func(int) { calls++ })

	Batch(func() {
		s.Set(1)
		Batch(func() {
			s.Set(2)
		})
		// Inner batch end must not flush while the outer is open.
		if calls != 0 {
			t.Errorf("watcher delivered %d times before outer batch end, want 0", calls)
		}
	})

	if calls != 1 {
		t.Errorf("watcher delivered %d times after nested batches, want 1", calls)
	}
	if got := s.Get(); got != 2 {
		t.Errorf("Get() = %d, want 2", got)
	}
}

func TestBatchMultipleWritesToOneCell(t *testing.T) {
	s := NewSource(0)

	var got []int
	s.Watch(func(v int) { got = append(got, v) })

	Batch(func() {
		s.Set(1)
		s.Set(2)
		s.Set(3)
	})

	// Only the final value is delivered.
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("watcher received %v, want [3]", got)
	}
}

func TestBatchEmptyIsNoOp(t *testing.T) {
	Batch(func() {})
}
