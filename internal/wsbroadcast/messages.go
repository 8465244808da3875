package wsbroadcast

import "time"

// MessageType identifies the shape of a broadcast payload.
type MessageType string

const (
	// MessageTypeStatusTransition is sent whenever an exchange's
	// ExchangeStatus moves between running/idle/error (spec §4.7 state
	// machine): dispatched, released, failed, or reaped by the Poller.
	MessageTypeStatusTransition MessageType = "statusTransition"

	// MessageTypeFetchCompleted is sent once a Fetch Worker job finishes,
	// successfully or not, carrying the pair counts from the run.
	MessageTypeFetchCompleted MessageType = "fetchCompleted"
)

// BaseMessage is embedded by every broadcast message.
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusTransitionMessage reports a running/idle/error transition for one
// exchange.
type StatusTransitionMessage struct {
	BaseMessage
	ExchangeID   int    `json:"exchange_id"`
	ExchangeName string `json:"exchange_name"`
	Status       string `json:"status"`
	JobID        string `json:"job_id,omitempty"`
}

// FetchCompletedMessage reports the outcome of one Fetch Worker run.
type FetchCompletedMessage struct {
	BaseMessage
	ExchangeID   int    `json:"exchange_id"`
	ExchangeName string `json:"exchange_name"`
	Success      bool   `json:"success"`
	PairCount    int    `json:"pair_count"`
	DroppedCount int    `json:"dropped_count"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// Status values used in StatusTransitionMessage.Status. These mirror the
// ExchangeStatus state machine (spec §4.7), not HTTP or job states.
const (
	StatusDispatched = "dispatched"
	StatusReleased   = "released"
	StatusFailed     = "failed"
	StatusTimedOut   = "timed_out"
)

// NewStatusTransitionMessage builds a StatusTransitionMessage.
func NewStatusTransitionMessage(exchangeID int, exchangeName, status, jobID string) *StatusTransitionMessage {
	return &StatusTransitionMessage{
		BaseMessage:  BaseMessage{Type: MessageTypeStatusTransition, Timestamp: time.Now()},
		ExchangeID:   exchangeID,
		ExchangeName: exchangeName,
		Status:       status,
		JobID:        jobID,
	}
}

// NewFetchCompletedMessage builds a FetchCompletedMessage.
func NewFetchCompletedMessage(exchangeID int, exchangeName string, success bool, pairCount, droppedCount int, duration time.Duration, err error) *FetchCompletedMessage {
	msg := &FetchCompletedMessage{
		BaseMessage:  BaseMessage{Type: MessageTypeFetchCompleted, Timestamp: time.Now()},
		ExchangeID:   exchangeID,
		ExchangeName: exchangeName,
		Success:      success,
		PairCount:    pairCount,
		DroppedCount: droppedCount,
		DurationMS:   duration.Milliseconds(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}
