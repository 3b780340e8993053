package match

import (
	"context"
	"errors"
	"time"

	"github.com/kapu/chess-arena-go/pkg/arenawire"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Participant is one of the two connections bound to a room.
type Participant struct {
	ConnID string
	Name   string
}

// waitingEntry lives in the FIFO queue until it is paired or its
// connection goes away. Owned exclusively by the Service.
type waitingEntry struct {
	ConnID   string
	Name     string
	JoinedAt time.Time
}

// Session is the authoritative record of one live room: exactly two
// participants with distinct colors and distinct connection ids. The
// RoomID is immutable for the life of the session and never reused.
type Session struct {
	RoomID    string
	White     Participant
	Black     Participant
	Moves     []string // accepted move notations in relay order
	CreatedAt time.Time
}

// peerOf returns the participant whose connection id differs from connID.
func (s *Session) peerOf(connID string) (Participant, bool) {
	switch connID {
	case s.White.ConnID:
		return s.Black, true
	case s.Black.ConnID:
		return s.White, true
	}
	return Participant{}, false
}

func (s *Session) colorOf(connID string) Color {
	if connID == s.Black.ConnID {
		return Black
	}
	return White
}

// RoomSnapshot is an immutable copy of a session's identity, safe to hand
// to mirrors and archivers outside the service lock.
type RoomSnapshot struct {
	RoomID    string    `json:"room_id"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name"`
	BlackID   string    `json:"black_id"`
	BlackName string    `json:"black_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Result describes a torn-down room for archiving.
type Result struct {
	RoomID    string
	White     Participant
	Black     Participant
	Moves     []string
	EndReason string // "opponent_left" | "opponent_disconnected"
	CreatedAt time.Time
	EndedAt   time.Time
}

// Stats is a point-in-time view of the service for ops endpoints.
type Stats struct {
	Waiting int `json:"waiting"`
	Rooms   int `json:"rooms"`
}

// Sender delivers an outbound event to one connection. Delivery is
// fire-and-forget: a failed delivery surfaces later as a disconnect
// event, never as an inline error.
type Sender interface {
	Deliver(connID string, env arenawire.Envelope)
}

// Mirror receives room lifecycle updates for operational visibility.
// Calls are best effort and must not be relied on for correctness.
type Mirror interface {
	RoomUp(ctx context.Context, snap RoomSnapshot)
	RoomDown(ctx context.Context, roomID string)
}

// Archiver records finished games.
type Archiver interface {
	SaveResult(ctx context.Context, rec *Result) error
}

var (
	ErrDuplicateConn = errors.New("participants share a connection id")
	ErrRoomCollision = errors.New("room id already registered")
)
