package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dwg-inc/cncreport/internal/report"
)

func TestGetOrCreateReturnsSameBundleWithinTTL(t *testing.T) {
	clock := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)
	s := NewWithClock(time.Hour, func() time.Time { return clock })

	builds := 0
	build := func() (*report.Bundle, error) {
		builds++
		return &report.Bundle{WeekID: "2026-08-16"}, nil
	}

	first, err := s.GetOrCreate("2026-08-16", build)
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(59 * time.Minute)
	second, err := s.GetOrCreate("2026-08-16", build)
	if err != nil {
		t.Fatal(err)
	}

	if builds != 1 {
		t.Errorf("expected a single build, got %d", builds)
	}
	if first != second {
		t.Error("expected the identical bundle pointer inside the TTL window")
	}
}

func TestExpiryTriggersRebuild(t *testing.T) {
	clock := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)
	s := NewWithClock(time.Hour, func() time.Time { return clock })

	builds := 0
	build := func() (*report.Bundle, error) {
		builds++
		return &report.Bundle{}, nil
	}

	if _, err := s.GetOrCreate("k", build); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(61 * time.Minute)
	if _, err := s.GetOrCreate("k", build); err != nil {
		t.Fatal(err)
	}
	if builds != 2 {
		t.Errorf("expected rebuild after expiry, got %d builds", builds)
	}
}

func TestBuildErrorsAreNotCached(t *testing.T) {
	s := New(time.Hour)

	boom := errors.New("provider down")
	if _, err := s.GetOrCreate("k", func() (*report.Bundle, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}
	if s.Len() != 0 {
		t.Error("failed build must not leave an entry behind")
	}

	b, err := s.GetOrCreate("k", func() (*report.Bundle, error) { return &report.Bundle{}, nil })
	if err != nil || b == nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	s := New(time.Hour)

	builds := 0
	build := func() (*report.Bundle, error) {
		builds++
		return &report.Bundle{}, nil
	}

	s.GetOrCreate("k", build)
	s.Invalidate("k")
	s.GetOrCreate("k", build)
	if builds != 2 {
		t.Errorf("expected rebuild after invalidation, got %d builds", builds)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s := New(time.Hour)

	a, _ := s.GetOrCreate("2026-08-16", func() (*report.Bundle, error) {
		return &report.Bundle{WeekID: "2026-08-16"}, nil
	})
	b, _ := s.GetOrCreate("2026-08-23", func() (*report.Bundle, error) {
		return &report.Bundle{WeekID: "2026-08-23"}, nil
	})
	if a == b {
		t.Error("distinct keys must not share an entry")
	}
	if got, ok := s.Get("2026-08-16"); !ok || got != a {
		t.Error("Get returned the wrong bundle")
	}
}

func TestDistinctKeysBuildConcurrently(t *testing.T) {
	s := New(time.Hour)

	firstRunning := make(chan struct{})
	release := make(chan struct{})

	go s.GetOrCreate("2026-08-16", func() (*report.Bundle, error) {
		close(firstRunning)
		<-release
		return &report.Bundle{}, nil
	})
	<-firstRunning

	// With the first build still in flight, a different period must
	// build immediately instead of queueing behind it.
	secondDone := make(chan struct{})
	go func() {
		s.GetOrCreate("2026-08-23", func() (*report.Bundle, error) {
			return &report.Bundle{}, nil
		})
		close(secondDone)
	}()

	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("build for a second period blocked behind an in-flight build")
	}
	close(release)
}

func TestConcurrentSameKeyBuildsOnce(t *testing.T) {
	s := New(time.Hour)

	builds := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.GetOrCreate("k", func() (*report.Bundle, error) {
				builds++
				return &report.Bundle{}, nil
			})
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Errorf("expected one build under contention, got %d", builds)
	}
}
