package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleEvent_PassesThroughAfterWindow(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "test.go", Operation: OpCreate, Timestamp: time.Now()})

	select {
	case event := <-d.Output():
		assert.Equal(t, "test.go", event.Path)
		assert.Equal(t, OpCreate, event.Operation)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_RapidModifiesToSamePath_CoalesceIntoOneEvent(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond, nil)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "test.go", Operation: OpModify, Timestamp: time.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case event := <-d.Output():
		assert.Equal(t, "test.go", event.Path)
		assert.Equal(t, OpModify, event.Operation)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}

	select {
	case event := <-d.Output():
		t.Fatalf("expected exactly one coalesced event, got a second: %+v", event)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncer_EachNewEventRearmsThatPathsTimer(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "test.go", Operation: OpModify, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond) // within the window, before it would have fired
	d.Add(FileEvent{Path: "test.go", Operation: OpModify, Timestamp: time.Now()})

	// By the end of this wait more than 80ms have passed since the first
	// Add, but the second Add re-armed the timer from its own arrival time,
	// so nothing has fired yet.
	select {
	case event := <-d.Output():
		t.Fatalf("timer fired on the first event's deadline instead of re-arming: %+v", event)
	case <-time.After(40 * time.Millisecond):
	}

	select {
	case <-d.Output():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for the re-armed event")
	}
}

func TestDebouncer_Delete_BypassesDebounceEntirely(t *testing.T) {
	d := NewDebouncer(500 * time.Millisecond, nil) // long window the delete must not wait on
	defer d.Stop()

	d.Add(FileEvent{Path: "gone.go", Operation: OpDelete, Timestamp: time.Now()})

	select {
	case event := <-d.Output():
		assert.Equal(t, OpDelete, event.Operation)
		assert.Equal(t, "gone.go", event.Path)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("delete should be emitted immediately, not debounced")
	}
}

func TestDebouncer_DeleteCancelsAPendingDebouncedEventForThatPath(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "churn.go", Operation: OpModify, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "churn.go", Operation: OpDelete, Timestamp: time.Now()})

	select {
	case event := <-d.Output():
		assert.Equal(t, OpDelete, event.Operation)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("delete should be emitted immediately")
	}

	// The pending modify must not also fire later.
	select {
	case event := <-d.Output():
		t.Fatalf("pending modify should have been cancelled by the delete, got: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_DirectoryEvent_NeverEmitted(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "subdir", Operation: OpCreate, IsDir: true, Timestamp: time.Now()})

	select {
	case event := <-d.Output():
		t.Fatalf("directory events must never be emitted, got: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_DifferentPaths_DebounceIndependently(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond, nil)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "b.go", Operation: OpModify, Timestamp: time.Now()})

	seen := make(map[string]Operation)
	for i := 0; i < 2; i++ {
		select {
		case event := <-d.Output():
			seen[event.Path] = event.Operation
		case <-time.After(200 * time.Millisecond):
			t.Fatal("timeout waiting for debounced events")
		}
	}

	require.Len(t, seen, 2)
	assert.Equal(t, OpCreate, seen["a.go"])
	assert.Equal(t, OpModify, seen["b.go"])
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond, nil)
	d.Stop()

	select {
	case _, ok := <-d.Output():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestDebouncer_Stop_CancelsPendingTimersWithoutEmitting(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond, nil)

	d.Add(FileEvent{Path: "a.go", Operation: OpModify, Timestamp: time.Now()})
	d.Stop()

	select {
	case event, ok := <-d.Output():
		if ok {
			t.Fatalf("stopped debouncer must not emit pending events, got: %+v", event)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("output channel should already be closed")
	}
}

func TestDebouncer_AddAfterStop_IsIgnored(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond, nil)
	d.Stop()

	assert.NotPanics(t, func() {
		d.Add(FileEvent{Path: "late.go", Operation: OpCreate, Timestamp: time.Now()})
	})
}
