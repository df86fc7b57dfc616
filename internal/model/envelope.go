package model

import (
	"encoding/json"
	"fmt"
)

// RawKind tags the three raw envelope variants the ingest subscriber
// accepts on market:* topics (spec §3, §9 "dynamic JSON envelopes").
type RawKind string

const (
	RawUnderlyingTick RawKind = "UnderlyingTick"
	RawOptionQuote    RawKind = "OptionQuote"
	RawOptionChain    RawKind = "OptionChain"
)

// RawEnvelope wraps a topic payload with enough of a tag to decode it
// without guessing from shape. The synthetic feed (out of scope, §1)
// is expected to publish one of these per message.
type RawEnvelope struct {
	Kind RawKind         `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// DecodeUnderlyingTick validates and decodes a RawEnvelope of kind
// RawUnderlyingTick. Rejection reasons match spec §4.D: schema
// mismatch, missing required field.
func (e RawEnvelope) DecodeUnderlyingTick() (UnderlyingTick, error) {
	if e.Kind != RawUnderlyingTick {
		return UnderlyingTick{}, fmt.Errorf("%w: expected UnderlyingTick, got %s", ErrEnvelopeInvalid, e.Kind)
	}
	var t UnderlyingTick
	if err := json.Unmarshal(e.Data, &t); err != nil {
		return UnderlyingTick{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if t.Product == "" || t.Timestamp.IsZero() || t.TickID <= 0 {
		return UnderlyingTick{}, fmt.Errorf("%w: missing product/timestamp/tick_id", ErrEnvelopeInvalid)
	}
	if t.Price.IsNegative() {
		return UnderlyingTick{}, fmt.Errorf("%w: negative price", ErrInvariantViolation)
	}
	return t, nil
}

// DecodeOptionQuote validates and decodes a standalone quote envelope.
func (e RawEnvelope) DecodeOptionQuote() (OptionQuote, error) {
	if e.Kind != RawOptionQuote {
		return OptionQuote{}, fmt.Errorf("%w: expected OptionQuote, got %s", ErrEnvelopeInvalid, e.Kind)
	}
	var q OptionQuote
	if err := json.Unmarshal(e.Data, &q); err != nil {
		return OptionQuote{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if q.Symbol == "" || q.Product == "" || q.Timestamp.IsZero() {
		return OptionQuote{}, fmt.Errorf("%w: missing symbol/product/timestamp", ErrEnvelopeInvalid)
	}
	if q.Bid.GreaterThan(q.Ask) {
		return OptionQuote{}, fmt.Errorf("%w: bid>ask for %s", ErrInvariantViolation, q.Symbol)
	}
	if q.OpenInterest < 0 {
		return OptionQuote{}, fmt.Errorf("%w: negative OI for %s", ErrInvariantViolation, q.Symbol)
	}
	return q, nil
}

// DecodeOptionChain validates and decodes a chain envelope, including
// the |calls|==|puts|==|strikes| structural invariant.
func (e RawEnvelope) DecodeOptionChain() (OptionChain, error) {
	if e.Kind != RawOptionChain {
		return OptionChain{}, fmt.Errorf("%w: expected OptionChain, got %s", ErrEnvelopeInvalid, e.Kind)
	}
	var c OptionChain
	if err := json.Unmarshal(e.Data, &c); err != nil {
		return OptionChain{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if c.Product == "" || c.Expiry.IsZero() || c.Timestamp.IsZero() {
		return OptionChain{}, fmt.Errorf("%w: missing product/expiry/timestamp", ErrEnvelopeInvalid)
	}
	if err := c.Validate(); err != nil {
		return OptionChain{}, err
	}
	return c, nil
}
