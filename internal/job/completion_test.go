package job

import (
	"testing"
	"time"
)

func TestCompletionRegistrySignalUnblocksWaiter(t *testing.T) {
	c := NewCompletionRegistry()
	done := c.Register("JOB-AAAAAA")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Signal("JOB-AAAAAA")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestCompletionRegistrySignalBeforeRegisterIsMissed(t *testing.T) {
	c := NewCompletionRegistry()
	c.Signal("JOB-AAAAAA")
	done := c.Register("JOB-AAAAAA")

	select {
	case <-done:
		t.Fatal("channel should not be closed: signal preceded registration")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCompletionRegistrySignalWithoutWaiterIsNoop(t *testing.T) {
	c := NewCompletionRegistry()
	c.Signal("JOB-NOBODY-WAITING")
}

func TestCompletionRegistryRegisterTwiceReturnsSameChannel(t *testing.T) {
	c := NewCompletionRegistry()
	first := c.Register("JOB-AAAAAA")
	second := c.Register("JOB-AAAAAA")

	c.Signal("JOB-AAAAAA")

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first waiter never signaled")
	}
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second waiter never signaled")
	}
}
