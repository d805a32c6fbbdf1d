// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(1 * time.Second)
	select {
	case fired := <-ch:
		want := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
		if !fired.Equal(want) {
			t.Errorf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	var calls atomic.Int32
	timer := c.AfterFunc(time.Second, func() { calls.Add(1) })

	if !timer.Stop() {
		t.Fatal("Stop returned false for a pending timer")
	}
	c.Advance(2 * time.Second)
	if calls.Load() != 0 {
		t.Error("stopped AfterFunc still fired")
	}

	if timer.Stop() {
		t.Error("second Stop returned true")
	}
}

func TestFakeTickerRepeats(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine never observed the timer firing")
	}
}
