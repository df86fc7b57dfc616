// Package gateway implements spec §4.E's fan-out gateway: it accepts
// long-lived websocket sessions, tracks per-session room membership,
// and re-broadcasts enriched events consumed from the shared bus to
// every session (on this instance) subscribed to the matching room.
// Cross-instance fan-out needs no coordination beyond every instance
// subscribing to the same bus topics.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/bus"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/metrics"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub owns the sessions accepted by this gateway instance and their
// room memberships. Room membership itself is instance-local; cross-
// instance visibility comes from every Hub independently consuming
// the same bus topics (spec §4.E's scaling model).
type Hub struct {
	bus      bus.Bus
	cache    store.Cache
	docStore store.DocStore
	metrics  *metrics.Registry
	logger   zerolog.Logger

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

func NewHub(b bus.Bus, cache store.Cache, docStore store.DocStore, reg *metrics.Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		bus:        b,
		cache:      cache,
		docStore:   docStore,
		metrics:    reg,
		logger:     logger.With().Str("component", "gateway_hub").Logger(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Run subscribes to the enriched topics and drains the hub's
// register/unregister channels until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	topics := []string{string(model.TopicEnrichedUnderlying), string(model.TopicEnrichedOptionChain)}
	msgs, closeSub := h.bus.Subscribe(ctx, topics...)
	defer closeSub()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.joinLocked(c, model.RoomGeneral)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.TrackGatewaySessions(h.sessionCount())
			}

		case c := <-h.unregister:
			h.removeClient(c)

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("%w: bus subscription closed", model.ErrTransientBackend)
			}
			h.handleEnrichedEvent(msg)
		}
	}
}

func (h *Hub) sessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) joinLocked(c *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(h.rooms[room], c)
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range h.rooms {
		delete(h.rooms[room], c)
	}
	h.mu.Unlock()
	c.markClosed()
	if h.metrics != nil {
		h.metrics.TrackGatewaySessions(h.sessionCount())
	}
}

// ServeHTTP upgrades the connection and starts the session's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newClient(uuid.NewString(), h, conn, h.logger)
	h.register <- c
	c.send(connectedFrame(c.id), false)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) handleClientMessage(c *Client, msg ClientMessage) {
	var room string
	switch msg.Kind {
	case "product":
		room = model.RoomProduct(model.Product(msg.Symbol))
	case "chain":
		room = model.RoomChain(model.Product(msg.Symbol))
	default:
		c.send(errorFrame(fmt.Sprintf("unknown subscription kind %q", msg.Kind)), false)
		return
	}

	switch msg.Action {
	case "subscribe":
		h.mu.Lock()
		h.joinLocked(c, room)
		h.mu.Unlock()
		c.send(subscribedFrame(room), false)
		h.deliverSnapshot(c, msg.Kind, model.Product(msg.Symbol))

	case "unsubscribe":
		h.mu.Lock()
		h.leaveLocked(c, room)
		h.mu.Unlock()
		c.send(unsubscribedFrame(room), false)

	default:
		c.send(errorFrame(fmt.Sprintf("unknown action %q", msg.Action)), false)
	}
}

// deliverSnapshot sends the hot-cache state for a freshly subscribed
// room immediately, per spec §4.E, so the client does not wait for
// the next live publish.
func (h *Hub) deliverSnapshot(c *Client, kind string, product model.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch kind {
	case "product":
		payload, err := h.cache.Get(ctx, model.KeyLatestUnderlying(product))
		if err != nil {
			return
		}
		c.send(eventFrame("underlying_update", payload, true), false)

	case "chain":
		expiries, err := h.docStore.Expiries(ctx, product)
		if err != nil {
			return
		}
		for _, expiry := range expiries {
			payload, err := h.cache.Get(ctx, model.KeyLatestChain(product, expiry))
			if err != nil {
				continue
			}
			c.send(eventFrame("chain_update", payload, true), false)
		}
	}
}

func (h *Hub) handleEnrichedEvent(msg bus.Message) {
	switch model.EnrichedTopic(msg.Topic) {
	case model.TopicEnrichedUnderlying:
		var ev model.EnrichedUnderlyingEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			h.logger.Warn().Err(err).Msg("dropping malformed enriched underlying event")
			return
		}
		h.broadcast(model.RoomProduct(ev.Product), eventFrame("underlying_update", msg.Payload, false))

	case model.TopicEnrichedOptionChain:
		var chain model.EnrichedChain
		if err := json.Unmarshal(msg.Payload, &chain); err != nil {
			h.logger.Warn().Err(err).Msg("dropping malformed enriched chain event")
			return
		}
		h.broadcast(model.RoomChain(chain.Product), eventFrame("chain_update", msg.Payload, false))
		h.broadcastGeneralSummary(chain)
	}
}

// generalSummary is the projection of an enriched chain the `general`
// room receives, per spec §4.E: derived fields only, not the full
// per-strike payload.
type generalSummary struct {
	Type          string `json:"type"`
	Product       string `json:"product"`
	PCROI         string `json:"pcr_oi"`
	MaxPainStrike int64  `json:"max_pain_strike"`
	ATMStrike     int64  `json:"atm_strike"`
}

func (h *Hub) broadcastGeneralSummary(chain model.EnrichedChain) {
	summary := generalSummary{
		Type:          "chain_summary",
		Product:       string(chain.Product),
		PCROI:         chain.PCROI.String(),
		MaxPainStrike: chain.MaxPainStrike,
		ATMStrike:     chain.ATMStrike,
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	h.broadcast(model.RoomGeneral, eventFrame("chain_summary", payload, false))
}

func (h *Hub) broadcast(room string, frame ServerFrame) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if ok := c.send(frame, true); !ok {
			h.closeSlowConsumer(c)
		}
	}
}

func (h *Hub) closeSlowConsumer(c *Client) {
	h.logger.Warn().Str("client_id", c.id).Msg("closing session: slow consumer")
	if h.metrics != nil {
		h.metrics.TrackGatewaySlowConsumerDisconnect()
	}
	h.removeClient(c)
	_ = c.conn.Close()
}
