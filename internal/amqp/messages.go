package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"orcamento/internal/core"
)

// MessageType tells the worker which job an envelope carries.
type MessageType string

const (
	TypeCacheRefresh  MessageType = "cache_refresh"
	TypeExportRequest MessageType = "export_request"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Envelope wraps every job published on the queue.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// CacheRefreshMessage asks a worker to refetch the full extract.
type CacheRefreshMessage struct {
	Reason string `json:"reason"`
}

// ExportRequestMessage asks a worker to export the comparative report of a
// selector to a target ("csv", "xlsx" or "sheets").
type ExportRequestMessage struct {
	Selector core.Selector `json:"selector"`
	Target   string        `json:"target"`
}

// NewEnvelope creates an envelope with a fresh job ID.
func NewEnvelope(typ MessageType, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   body,
	}, nil
}

// ToJSON converts the envelope to JSON bytes
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EnvelopeFromJSON parses an envelope and checks its type and ID.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type != TypeCacheRefresh && env.Type != TypeExportRequest {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if _, err := uuid.Parse(env.ID); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", env.ID, err)
	}
	return &env, nil
}

// CacheRefresh decodes the payload of a cache refresh envelope.
func (e *Envelope) CacheRefresh() (CacheRefreshMessage, error) {
	var m CacheRefreshMessage
	if e.Type != TypeCacheRefresh {
		return m, fmt.Errorf("%w: want %s, got %s", ErrUnknownMessage, TypeCacheRefresh, e.Type)
	}
	err := json.Unmarshal(e.Payload, &m)
	return m, err
}

// ExportRequest decodes the payload of an export request envelope.
func (e *Envelope) ExportRequest() (ExportRequestMessage, error) {
	var m ExportRequestMessage
	if e.Type != TypeExportRequest {
		return m, fmt.Errorf("%w: want %s, got %s", ErrUnknownMessage, TypeExportRequest, e.Type)
	}
	err := json.Unmarshal(e.Payload, &m)
	return m, err
}
