// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies: message types and reject reasons
// are recorded by their string form. Delivery policy counters are absorbed
// from policy.Stats at session end rather than recorded live, avoiding
// double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted   int64 `json:"sessions_started"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsFailed    int64 `json:"sessions_failed"`
	SessionsCanceled  int64 `json:"sessions_canceled"`

	// Decoder
	BytesReceived       int64            `json:"bytes_received"`
	BytesInvalid        int64            `json:"bytes_invalid"`
	MessagesStarted     int64            `json:"messages_started"`
	MessagesEmitted     int64            `json:"messages_emitted"`
	EmittedByType       map[string]int64 `json:"emitted_by_type"`
	MessagesRejected    int64            `json:"messages_rejected"`
	RejectedByReason    map[string]int64 `json:"rejected_by_reason"`
	CaptureDecodeErrors int64            `json:"capture_decode_errors"`

	// Delivery (absorbed from policy.Stats at session end)
	MessagesReceived  int64            `json:"messages_received"`
	MessagesPersisted int64            `json:"messages_persisted"`
	MessagesDropped   int64            `json:"messages_dropped"`
	DroppedByType     map[string]int64 `json:"dropped_by_type"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	Policy         string `json:"policy"`
	StorageBackend string `json:"storage_backend"`
	Feed           string `json:"feed"`
	SessionID      string `json:"session_id"`
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	sessionsStarted   int64
	sessionsCompleted int64
	sessionsFailed    int64
	sessionsCanceled  int64

	bytesReceived       int64
	bytesInvalid        int64
	messagesStarted     int64
	messagesEmitted     int64
	emittedByType       map[string]int64
	messagesRejected    int64
	rejectedByReason    map[string]int64
	captureDecodeErrors int64

	messagesReceived  int64
	messagesPersisted int64
	messagesDropped   int64
	droppedByType     map[string]int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	policy         string
	storageBackend string
	feed           string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// policy and storageBackend are required; feed and sessionID may be empty
// for ad-hoc decodes.
func NewCollector(policy, storageBackend, feed, sessionID string) *Collector {
	return &Collector{
		emittedByType:    make(map[string]int64),
		rejectedByReason: make(map[string]int64),
		droppedByType:    make(map[string]int64),
		policy:           policy,
		storageBackend:   storageBackend,
		feed:             feed,
		sessionID:        sessionID,
	}
}

// --- Session lifecycle ---

// IncSessionStarted records a session start.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

// IncSessionCompleted records a session that decoded its capture to the end.
func (c *Collector) IncSessionCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCompleted++
	c.mu.Unlock()
}

// IncSessionFailed records a capture_error or policy_failure session.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsFailed++
	c.mu.Unlock()
}

// IncSessionCanceled records a canceled session.
func (c *Collector) IncSessionCanceled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsCanceled++
	c.mu.Unlock()
}

// --- Decoder ---

// AddBytes records n byte events, of which invalid carried valid=false.
func (c *Collector) AddBytes(n, invalid int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesReceived += n
	c.bytesInvalid += invalid
	c.mu.Unlock()
}

// AddMessagesStarted records n valid start events.
func (c *Collector) AddMessagesStarted(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesStarted += n
	c.mu.Unlock()
}

// IncEmitted records one emitted message of the given type.
func (c *Collector) IncEmitted(msgType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesEmitted++
	c.emittedByType[msgType]++
	c.mu.Unlock()
}

// IncRejected records one discarded message with its reason.
func (c *Collector) IncRejected(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesRejected++
	c.rejectedByReason[reason]++
	c.mu.Unlock()
}

// IncCaptureDecodeErrors records a capture file decode error.
func (c *Collector) IncCaptureDecodeErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.captureDecodeErrors++
	c.mu.Unlock()
}

// --- Lode / Storage ---
// Lode counters are per-call, not per-record. A single WriteMessages call
// with N messages counts as 1 success. Per-message granularity is tracked
// by policy.Stats (messages_persisted).

// IncLodeWriteSuccess records a successful Lode write operation.
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteSuccess++
	c.mu.Unlock()
}

// IncLodeWriteFailure records a failed Lode write operation.
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lodeWriteFailure++
	c.mu.Unlock()
}

// --- Delivery (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies delivery counters from policy.Stats.
// Called once after the session with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(received, persisted, dropped int64, droppedByType map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesReceived = received
	c.messagesPersisted = persisted
	c.messagesDropped = dropped
	c.droppedByType = copyCounts(droppedByType)
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		SessionsStarted:   c.sessionsStarted,
		SessionsCompleted: c.sessionsCompleted,
		SessionsFailed:    c.sessionsFailed,
		SessionsCanceled:  c.sessionsCanceled,

		BytesReceived:       c.bytesReceived,
		BytesInvalid:        c.bytesInvalid,
		MessagesStarted:     c.messagesStarted,
		MessagesEmitted:     c.messagesEmitted,
		EmittedByType:       copyCounts(c.emittedByType),
		MessagesRejected:    c.messagesRejected,
		RejectedByReason:    copyCounts(c.rejectedByReason),
		CaptureDecodeErrors: c.captureDecodeErrors,

		MessagesReceived:  c.messagesReceived,
		MessagesPersisted: c.messagesPersisted,
		MessagesDropped:   c.messagesDropped,
		DroppedByType:     copyCounts(c.droppedByType),

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		Policy:         c.policy,
		StorageBackend: c.storageBackend,
		Feed:           c.feed,
		SessionID:      c.sessionID,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
