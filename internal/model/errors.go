package model

import "errors"

// The seven error kinds of spec §7, modeled as sentinels rather than
// custom types so every layer can test with errors.Is after wrapping
// with fmt.Errorf("...: %w", err).
var (
	// ErrEnvelopeInvalid: malformed JSON, missing field, schema violation.
	ErrEnvelopeInvalid = errors.New("envelope invalid")
	// ErrInvariantViolation: data fails a §3 structural invariant.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrTransientBackend: cache/store/bus unavailable, timeout, refused.
	ErrTransientBackend = errors.New("transient backend error")
	// ErrDuplicateEffect: unique-index violation on insert.
	ErrDuplicateEffect = errors.New("duplicate effect")
	// ErrTaskTimeout: soft or hard task time limit exceeded.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrSubscriberOverflow: session outbound queue exceeded capacity.
	ErrSubscriberOverflow = errors.New("subscriber overflow")
	// ErrBackpressureTrigger: broker depth crossed the high watermark.
	ErrBackpressureTrigger = errors.New("backpressure triggered")
)
