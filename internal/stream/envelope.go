package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message kinds
const (
	KindAggregate   = "aggregate"
	KindOpportunity = "opportunity"
	KindBacktest    = "backtest"
)

// EnvelopeVersion is the current envelope format
const EnvelopeVersion = 1

// Envelope wraps a published result with routing and integrity metadata
type Envelope struct {
	MessageID string          `json:"message_id"`
	Timestamp time.Time       `json:"ts"`
	Kind      string          `json:"kind"`
	Symbol    string          `json:"symbol"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Checksum  string          `json:"checksum"` // sha256(payload||ts||symbol||source)
	Version   int             `json:"version"`
}

// NewEnvelope marshals payload into a checksummed envelope
func NewEnvelope(kind, symbol string, payload interface{}, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	e := Envelope{
		MessageID: uuid.NewString(),
		Timestamp: at.UTC(),
		Kind:      kind,
		Symbol:    symbol,
		Source:    "sentirun",
		Payload:   raw,
		Version:   EnvelopeVersion,
	}
	e.Checksum = e.ComputeChecksum()
	return e, nil
}

// ComputeChecksum hashes the payload with its identifying fields
func (e *Envelope) ComputeChecksum() string {
	input := fmt.Sprintf("%s||%d||%s||%s", string(e.Payload), e.Timestamp.UnixNano(), e.Symbol, e.Source)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Validate checks required fields and the checksum when present
func Validate(e *Envelope) error {
	if e.Kind == "" {
		return fmt.Errorf("envelope kind is empty")
	}
	if e.Source == "" {
		return fmt.Errorf("envelope source is empty")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope payload is empty")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("envelope timestamp is zero")
	}
	if e.Version <= 0 {
		return fmt.Errorf("envelope version must be positive, got %d", e.Version)
	}
	if e.Checksum != "" {
		if expected := e.ComputeChecksum(); e.Checksum != expected {
			return fmt.Errorf("envelope checksum mismatch: expected %s, got %s", expected, e.Checksum)
		}
	}
	return nil
}
