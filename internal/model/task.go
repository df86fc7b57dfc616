package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind tags the enrichment task variants of spec §4.C.
type TaskKind string

const (
	TaskEnrichTick    TaskKind = "EnrichTick"
	TaskEnrichChain   TaskKind = "EnrichChain"
	TaskRecomputeOHLC TaskKind = "RecomputeOHLC"
)

// Task is the tagged-variant envelope the broker carries and the
// worker pool dispatches on Kind. Exactly one of the payload fields is
// populated, matching TaskEnrichTick / TaskEnrichChain / TaskRecomputeOHLC.
type Task struct {
	ID       string          `json:"id"`
	Kind     TaskKind        `json:"kind"`
	Tick     *UnderlyingTick `json:"tick,omitempty"`
	Chain    *OptionChain    `json:"chain,omitempty"`
	OHLC     *RecomputeOHLC  `json:"ohlc,omitempty"`
	Attempt  int             `json:"attempt"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// RecomputeOHLC is the operator-triggered repair task of spec §4.C.
type RecomputeOHLC struct {
	Product Product    `json:"product"`
	Window  WindowSize `json:"window"`
	TStart  time.Time  `json:"t_start"`
}

// Marshal/Unmarshal round-trip the task through the broker's durable
// queue, which stores raw bytes (spec §4.F).
func (t Task) Marshal() ([]byte, error) { return json.Marshal(t) }

func UnmarshalTask(b []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	if t.Kind != TaskEnrichTick && t.Kind != TaskEnrichChain && t.Kind != TaskRecomputeOHLC {
		return Task{}, fmt.Errorf("%w: unknown task kind %q", ErrEnvelopeInvalid, t.Kind)
	}
	return t, nil
}

// RawTopic names the three raw pub/sub topics of spec §6.
type RawTopic string

const (
	TopicRawUnderlying  RawTopic = "market:underlying"
	TopicRawOptionChain RawTopic = "market:option_chain"
	TopicRawOptionQuote RawTopic = "market:option_quote"
)

// EnrichedTopic names the two enriched pub/sub topics of spec §6.
type EnrichedTopic string

const (
	TopicEnrichedUnderlying   EnrichedTopic = "enriched:underlying"
	TopicEnrichedOptionChain  EnrichedTopic = "enriched:option_chain"
)

// EnrichedUnderlyingEvent is the payload published on
// enriched:underlying — the tick plus its current OHLC windows.
type EnrichedUnderlyingEvent struct {
	UnderlyingTick
	OHLC        map[int64]OHLCWindow `json:"ohlc"` // keyed by window size in seconds
	ProcessedAt time.Time            `json:"processed_at"`
}
