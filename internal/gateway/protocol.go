package gateway

import (
	"encoding/json"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// ClientMessage is an inbound session frame, per spec §4.E's subscribe
// grammar.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Kind   string `json:"kind"`   // "product" | "chain"
	Symbol string `json:"symbol"`
}

// ServerFrame is an outbound session frame. Only the fields belonging
// to Type are populated (client_id+rooms for connected, room for
// subscribed/unsubscribed, reason for error, event+snapshot for
// updates), matching the event grammar of spec §4.E.
type ServerFrame struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Rooms     []string        `json:"rooms,omitempty"`
	Room      string          `json:"room,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Snapshot  bool            `json:"snapshot,omitempty"`
}

func connectedFrame(clientID string) ServerFrame {
	return ServerFrame{Type: "connected", ClientID: clientID, Rooms: []string{model.RoomGeneral}}
}

func subscribedFrame(room string) ServerFrame   { return ServerFrame{Type: "subscribed", Room: room} }
func unsubscribedFrame(room string) ServerFrame { return ServerFrame{Type: "unsubscribed", Room: room} }
func errorFrame(reason string) ServerFrame      { return ServerFrame{Type: "error", Reason: reason} }

func eventFrame(typ string, payload []byte, snapshot bool) ServerFrame {
	return ServerFrame{Type: typ, Event: payload, Snapshot: snapshot}
}
