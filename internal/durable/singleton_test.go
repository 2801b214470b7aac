package durable

import (
	"context"
	"testing"
	"time"
)

func TestControllerCancelsPriorRunOnNewMessage(t *testing.T) {
	c := NewController()

	firstCtx, firstDone := c.Begin(context.Background(), "session-1", "msg-1")
	defer firstDone()

	_, secondDone := c.Begin(context.Background(), "session-1", "msg-2")
	defer secondDone()

	select {
	case <-firstCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected the prior run's context to be cancelled when a new message arrives for the same key")
	}
}

func TestControllerSelfCancellationGuard(t *testing.T) {
	c := NewController()

	firstCtx, firstDone := c.Begin(context.Background(), "session-1", "msg-1")
	defer firstDone()

	// A second Begin with the SAME messageID must not cancel the run it
	// itself represents (e.g. a redelivered triggering event).
	_, secondDone := c.Begin(context.Background(), "session-1", "msg-1")
	defer secondDone()

	select {
	case <-firstCtx.Done():
		t.Fatal("expected no cancellation when the same messageID re-registers")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerDistinctKeysDoNotCancelEachOther(t *testing.T) {
	c := NewController()

	ctxA, doneA := c.Begin(context.Background(), "session-a", "msg-1")
	defer doneA()
	_, doneB := c.Begin(context.Background(), "session-b", "msg-1")
	defer doneB()

	select {
	case <-ctxA.Done():
		t.Fatal("expected a run for a different key to leave this one untouched")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerDoneClearsActiveState(t *testing.T) {
	c := NewController()

	if c.Active("session-1") {
		t.Fatal("expected no active run before Begin")
	}

	_, done := c.Begin(context.Background(), "session-1", "msg-1")
	if !c.Active("session-1") {
		t.Error("expected an active run after Begin")
	}

	done()
	if c.Active("session-1") {
		t.Error("expected no active run after done")
	}
}
