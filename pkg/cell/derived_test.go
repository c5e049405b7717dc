package cell

import (
	"errors"
	"strings"
	"testing"
)

func TestDerivedComputesFromSource(t *testing.T) {
	s := NewSource(5)
	d := Map(func() int { return s.Get() * 2 })

	if got := d.Get(); got != 10 {
		t.Errorf("Get() = %d, want 10", got)
	}

	s.Set(6)
	if got := d.Get(); got != 12 {
		t.Errorf("after Set(6), Get() = %d, want 12", got)
	}
}

func TestDerivedChain(t *testing.T) {
	s := NewSource(1)
	double := Map(func() int { return s.Get() * 2 })
	quad := Map(func() int { return double.Get() * 2 })

	if got := quad.Get(); got != 4 {
		t.Errorf("Get() = %d, want 4", got)
	}

	s.Set(3)
	if got := quad.Get(); got != 12 {
		t.Errorf("after Set(3), Get() = %d, want 12", got)
	}
}

func TestDerivedRecomputesOncePerWave(t *testing.T) {
	s := NewSource(1)

	computes := 0
	d := Map(func() int {
		computes++
		return s.Get() + 1
	})
	d.Watch(func(int) {})

	computes = 0
	s.Set(2)

	if computes != 1 {
		t.Errorf("recomputed %d times for one write, want 1", computes)
	}
}

func TestDerivedDiamondCoalesces(t *testing.T) {
	s := NewSource(1)
	left := Map(func() int { return s.Get() + 1 })
	right := Map(func() int { return s.Get() * 10 })

	computes := 0
	deliveries := 0
	sum := Map(func() int {
		computes++
		return left.Get() + right.Get()
	})
	sum.Watch(func(int) { deliveries++ })

	computes = 0
	s.Set(2)

	if computes != 1 {
		t.Errorf("diamond join recomputed %d times, want 1", computes)
	}
	if deliveries != 1 {
		t.Errorf("diamond join delivered %d times, want 1", deliveries)
	}
	if got := sum.Get(); got != 23 {
		t.Errorf("Get() = %d, want 23", got)
	}
}

func TestDerivedShortCircuitStopsPropagation(t *testing.T) {
	s := NewSource(1)
	parity := Map(func() int { return s.Get() % 2 })

	computes := 0
	deliveries := 0
	label := Map(func() string {
		computes++
		if parity.Get() == 0 {
			return "even"
		}
		return "odd"
	})
	label.Watch(func(string) { deliveries++ })

	computes = 0
	s.Set(3) // parity unchanged: downstream must not recompute or deliver

	if computes != 0 {
		t.Errorf("downstream recomputed %d times for unchanged input, want 0", computes)
	}
	if deliveries != 0 {
		t.Errorf("downstream delivered %d times for unchanged input, want 0", deliveries)
	}

	s.Set(4)
	if computes != 1 {
		t.Errorf("downstream recomputed %d times after real change, want 1", computes)
	}
	if got := label.Get(); got != "even" {
		t.Errorf("Get() = %q, want %q", got, "even")
	}
}

func TestDerivedDynamicDependencies(t *testing.T) {
	useFirst := NewSource(true)
	first := NewSource("a")
	second := NewSource("b")

	computes := 0
	d := Map(func() string {
		computes++
		if useFirst.Get() {
			return first.Get()
		}
		return second.Get()
	})
	d.Watch(func(string) {})

	computes = 0
	second.Set("bb") // not a dependency yet
	if computes != 0 {
		t.Errorf("recomputed %d times for unread branch, want 0", computes)
	}

	useFirst.Set(false)
	if got := d.Get(); got != "bb" {
		t.Errorf("after branch switch, Get() = %q, want %q", got, "bb")
	}

	computes = 0
	first.Set("aa") // no longer a dependency
	if computes != 0 {
		t.Errorf("recomputed %d times for dropped dependency, want 0", computes)
	}

	second.Set("bbb")
	if computes != 1 {
		t.Errorf("recomputed %d times for current dependency, want 1", computes)
	}
}

func TestDerivedErrorKeepsValue(t *testing.T) {
	s := NewSource(4)
	errNegative := errors.New("negative input")

	d := NewDerived(func() (int, error) {
		v := s.Get()
		if v < 0 {
			return 0, errNegative
		}
		return v * v, nil
	})

	deliveries := 0
	d.Watch(func(int) { deliveries++ })

	s.Set(-1)

	// The failed evaluation keeps the last good value.
	if got := d.Get(); got != 16 {
		t.Errorf("after failing evaluation, Get() = %d, want 16", got)
	}
	if _, err := d.Try(); !errors.Is(err, errNegative) {
		t.Errorf("Try() err = %v, want %v", err, errNegative)
	}
	if deliveries != 0 {
		t.Errorf("watcher delivered %d times for failed evaluation, want 0", deliveries)
	}

	// Recovery clears the error and notifies.
	s.Set(5)
	if v, err := d.Try(); err != nil || v != 25 {
		t.Errorf("after recovery, Try() = (%d, %v), want (25, nil)", v, err)
	}
	if deliveries != 1 {
		t.Errorf("watcher delivered %d times after recovery, want 1", deliveries)
	}
}

func TestDerivedPanicBecomesError(t *testing.T) {
	s := NewSource(1)
	d := NewDerived(func() (int, error) {
		if s.Get() == 0 {
			panic("division by zero")
		}
		return 10 / s.Get(), nil
	})
	d.Watch(func(int) {})

	s.Set(0)

	err := d.Err()
	if err == nil {
		t.Fatal("Err() = nil, want derivation panic error")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("Err() = %v, want message containing panic value", err)
	}
	if got := d.Get(); got != 10 {
		t.Errorf("after panic, Get() = %d, want last good value 10", got)
	}
}

func TestDerivedOfDerivedWatches(t *testing.T) {
	s := NewSource(1)
	d := Map(func() int { return s.Get() * 2 })

	var got []int
	d.Watch(func(v int) { got = append(got, v) })

	s.Set(2)
	s.Set(3)

	if len(got) != 2 || got[0] != 4 || got[1] != 6 {
		t.Errorf("watch received %v, want [4 6]", got)
	}
}

func TestDerivedLazyReadBetweenWrites(t *testing.T) {
	// A derived cell with no watchers still settles correctly on read.
	s := NewSource(2)
	d := Map(func() int { return s.Get() * 3 })

	s.Set(4)
	if got := d.Get(); got != 12 {
		t.Errorf("Get() = %d, want 12", got)
	}
}
