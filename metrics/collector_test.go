package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("strict", "fs", "itch", "sess-001")

	c.IncSessionStarted()
	c.IncSessionCompleted()
	c.IncSessionFailed()
	c.IncSessionFailed()
	c.IncSessionCanceled()
	c.AddBytes(100, 3)
	c.AddBytes(50, 0)
	c.AddMessagesStarted(4)
	c.IncEmitted("A")
	c.IncEmitted("A")
	c.IncEmitted("D")
	c.IncRejected("transport_invalid")
	c.IncCaptureDecodeErrors()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteFailure()

	s := c.Snapshot()

	if s.SessionsStarted != 1 {
		t.Errorf("SessionsStarted = %d, want 1", s.SessionsStarted)
	}
	if s.SessionsCompleted != 1 {
		t.Errorf("SessionsCompleted = %d, want 1", s.SessionsCompleted)
	}
	if s.SessionsFailed != 2 {
		t.Errorf("SessionsFailed = %d, want 2", s.SessionsFailed)
	}
	if s.SessionsCanceled != 1 {
		t.Errorf("SessionsCanceled = %d, want 1", s.SessionsCanceled)
	}
	if s.BytesReceived != 150 || s.BytesInvalid != 3 {
		t.Errorf("bytes = %d/%d, want 150/3", s.BytesReceived, s.BytesInvalid)
	}
	if s.MessagesStarted != 4 {
		t.Errorf("MessagesStarted = %d, want 4", s.MessagesStarted)
	}
	if s.MessagesEmitted != 3 || s.EmittedByType["A"] != 2 || s.EmittedByType["D"] != 1 {
		t.Errorf("emitted = %d %v", s.MessagesEmitted, s.EmittedByType)
	}
	if s.MessagesRejected != 1 || s.RejectedByReason["transport_invalid"] != 1 {
		t.Errorf("rejected = %d %v", s.MessagesRejected, s.RejectedByReason)
	}
	if s.CaptureDecodeErrors != 1 {
		t.Errorf("CaptureDecodeErrors = %d, want 1", s.CaptureDecodeErrors)
	}
	if s.LodeWriteSuccess != 2 {
		t.Errorf("LodeWriteSuccess = %d, want 2", s.LodeWriteSuccess)
	}
	if s.LodeWriteFailure != 1 {
		t.Errorf("LodeWriteFailure = %d, want 1", s.LodeWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("buffered", "s3", "itch", "sess-9").Snapshot()
	if s.Policy != "buffered" || s.StorageBackend != "s3" || s.Feed != "itch" || s.SessionID != "sess-9" {
		t.Errorf("dimensions = %+v", s)
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("buffered", "fs", "", "")
	dropped := map[string]int64{"X": 2}
	c.AbsorbPolicyStats(10, 8, 2, dropped)

	dropped["X"] = 99

	s := c.Snapshot()
	if s.MessagesReceived != 10 || s.MessagesPersisted != 8 || s.MessagesDropped != 2 {
		t.Errorf("absorbed = %+v", s)
	}
	if s.DroppedByType["X"] != 2 {
		t.Errorf("DroppedByType aliased caller map: %v", s.DroppedByType)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("strict", "fs", "", "")
	c.IncEmitted("A")
	s := c.Snapshot()
	s.EmittedByType["A"] = 100

	if got := c.Snapshot().EmittedByType["A"]; got != 1 {
		t.Errorf("collector mutated through snapshot: %d", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncSessionStarted()
	c.AddBytes(1, 1)
	c.IncEmitted("A")
	c.IncRejected("truncated")
	c.AbsorbPolicyStats(1, 1, 0, nil)
	if s := c.Snapshot(); s.BytesReceived != 0 {
		t.Errorf("nil collector snapshot = %+v", s)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector("strict", "fs", "", "")
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.IncEmitted("E")
				c.AddBytes(1, 0)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.MessagesEmitted != 8000 || s.BytesReceived != 8000 {
		t.Errorf("concurrent counts = %d/%d, want 8000/8000", s.MessagesEmitted, s.BytesReceived)
	}
}
