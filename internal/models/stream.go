package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StreamType names the kind of frame sent on the alert stream.
type StreamType string

const (
	StreamAlert     StreamType = "alert"
	StreamHeartbeat StreamType = "heartbeat"
)

// StreamMessage is one frame of the websocket alert stream. Seq increases
// by one per frame so clients can detect frames lost to a slow connection.
type StreamMessage struct {
	Type    StreamType      `json:"type"`
	Seq     uint64          `json:"seq"`
	Station StationID       `json:"station,omitempty"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Heartbeat is the payload of a StreamHeartbeat frame
type Heartbeat struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Clients       int   `json:"clients"`
}

// APIError is the body of an HTTP error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAlertMessage frames an alert for the stream
func NewAlertMessage(seq uint64, alert AlertEvent) (StreamMessage, error) {
	msg, err := newStreamMessage(StreamAlert, seq, alert)
	msg.Station = alert.StationID
	return msg, err
}

// NewHeartbeatMessage frames a heartbeat for the stream
func NewHeartbeatMessage(seq uint64, hb Heartbeat) (StreamMessage, error) {
	return newStreamMessage(StreamHeartbeat, seq, hb)
}

func newStreamMessage(t StreamType, seq uint64, payload interface{}) (StreamMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return StreamMessage{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return StreamMessage{
		Type:    t,
		Seq:     seq,
		Payload: data,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Alert decodes the payload of an alert frame
func (m StreamMessage) Alert() (AlertEvent, error) {
	var alert AlertEvent
	if m.Type != StreamAlert {
		return alert, fmt.Errorf("frame %d is %s, not alert", m.Seq, m.Type)
	}
	err := json.Unmarshal(m.Payload, &alert)
	return alert, err
}

// Heartbeat decodes the payload of a heartbeat frame
func (m StreamMessage) Heartbeat() (Heartbeat, error) {
	var hb Heartbeat
	if m.Type != StreamHeartbeat {
		return hb, fmt.Errorf("frame %d is %s, not heartbeat", m.Seq, m.Type)
	}
	err := json.Unmarshal(m.Payload, &hb)
	return hb, err
}
