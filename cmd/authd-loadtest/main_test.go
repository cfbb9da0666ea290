package main

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	if got := percentile(samples, 50); got != 50*time.Millisecond {
		t.Fatalf("p50 = %s", got)
	}
	if got := percentile(samples, 0); got != time.Millisecond {
		t.Fatalf("p0 = %s", got)
	}
	if got := percentile(samples, 100); got != 100*time.Millisecond {
		t.Fatalf("p100 = %s", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %s", got)
	}
}

func TestRunPhaseCountsFailures(t *testing.T) {
	var n int
	stats := runPhase(10, 1, func(*rand.Rand) error {
		n++
		if n%2 == 0 {
			return errors.New("fail")
		}
		return nil
	})
	if stats.ops != 10 || stats.failures != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
