// Package arenawire defines the JSON events exchanged between the arena
// server and browser clients over the WebSocket gateway.
package arenawire

import "encoding/json"

// Inbound event names (client → server).
const (
	EvtJoinGame  = "joinGame"
	EvtMakeMove  = "makeMove"
	EvtLeaveGame = "leaveGame"
)

// Outbound event names (server → client).
const (
	EvtGameStart            = "gameStart"
	EvtMoveMade             = "moveMade"
	EvtOpponentDisconnected = "opponentDisconnected"
)

// Envelope is the frame carried on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinGame asks to be paired with the longest-waiting player.
type JoinGame struct {
	UserName string `json:"userName"`
}

// MakeMove reports a move together with the client-computed resulting
// position. The server relays it verbatim to the room's other participant.
type MakeMove struct {
	RoomID string `json:"roomId"`
	FEN    string `json:"fen"`
	Move   string `json:"move"`
}

// GameStart is sent to both participants of a freshly paired room.
type GameStart struct {
	RoomID       string `json:"roomId"`
	Color        string `json:"color"`
	OpponentName string `json:"opponentName"`
}

// MoveMade carries a relayed move to the non-sending participant.
type MoveMade struct {
	FEN  string `json:"fen"`
	Move string `json:"move"`
}

// Pack wraps a payload into an Envelope. Payload marshalling only fails for
// non-serialisable types, which would be a programming error; callers that
// pack the fixed DTOs above may ignore the error.
func Pack(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
