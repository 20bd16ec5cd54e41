package id

import (
	"regexp"
	"sync"
	"testing"
	"time"
)

func TestSystem_UUIDFormat(t *testing.T) {
	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	got := System().UUID()
	if !uuidRegex.MatchString(got) {
		t.Errorf("UUID() = %q, does not match UUID v4 format", got)
	}
}

func TestSystem_UUIDUniqueness(t *testing.T) {
	src := System()
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		v := src.UUID()
		if seen[v] {
			t.Fatalf("UUID() generated duplicate: %s", v)
		}
		seen[v] = true
	}
}

func TestFixed_Now(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFixed(at)
	if !f.Now().Equal(at) {
		t.Errorf("Now() = %v, want %v", f.Now(), at)
	}
	f.Advance(time.Minute)
	if !f.Now().Equal(at.Add(time.Minute)) {
		t.Errorf("Now() after Advance = %v, want %v", f.Now(), at.Add(time.Minute))
	}
}

func TestFixed_UUIDSequence(t *testing.T) {
	f := NewFixed(time.Time{}, "a", "b")
	if got := f.UUID(); got != "a" {
		t.Errorf("first UUID() = %q, want a", got)
	}
	if got := f.UUID(); got != "b" {
		t.Errorf("second UUID() = %q, want b", got)
	}
	third, fourth := f.UUID(), f.UUID()
	if third == fourth {
		t.Errorf("fallback UUIDs should differ, both %q", third)
	}
}

func TestFixed_Concurrent(t *testing.T) {
	f := NewFixed(time.Time{})
	var wg sync.WaitGroup
	results := make(chan string, 500)
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				results <- f.UUID()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for v := range results {
		if seen[v] {
			t.Fatalf("duplicate UUID under concurrency: %s", v)
		}
		seen[v] = true
	}
}
