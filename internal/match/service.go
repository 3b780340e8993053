package match

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/obslog"
	"github.com/kapu/chess-arena-go/pkg/arenawire"
)

// Service owns the matchmaking queue and the session registry. One mutex
// serializes every join, move, leave, and disconnect so that pairing is
// atomic and no handler ever observes a half-paired state. Nothing under
// the lock blocks on external I/O: outbound delivery is a non-blocking
// hand-off and mirror/archive writes run on their own goroutines.
type Service struct {
	mu     sync.Mutex
	queue  []*waitingEntry
	rooms  map[string]*Session
	byConn map[string]string // connID -> roomID, derived index

	out      Sender
	validate MoveValidator

	mirror  Mirror
	archive Archiver

	newRoomID func() string
}

func NewService() *Service {
	return &Service{
		rooms:     make(map[string]*Session),
		byConn:    make(map[string]string),
		validate:  NopValidator(),
		newRoomID: uuid.NewString,
	}
}

// AttachSender wires the outbound delivery side. Must be called before the
// first inbound event is dispatched.
func (s *Service) AttachSender(out Sender) {
	if s != nil {
		s.out = out
	}
}

// SetValidator installs a move validation step for the relay. The default
// forwarder trusts the sender's client.
func (s *Service) SetValidator(v MoveValidator) {
	if s != nil && v != nil {
		s.validate = v
	}
}

// AttachMirror wires a live-room mirror for ops visibility.
func (s *Service) AttachMirror(m Mirror) {
	if s != nil {
		s.mirror = m
	}
}

// AttachArchiver wires a repository for persisting finished games.
func (s *Service) AttachArchiver(a Archiver) {
	if s != nil {
		s.archive = a
	}
}

// Join pairs the connection with the longest-waiting player, or enqueues
// it when nobody is waiting. Pairing is strict FIFO.
func (s *Service) Join(ctx context.Context, connID, name string) {
	connID = strings.TrimSpace(connID)
	if connID == "" {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "anonymous"
	}

	s.mu.Lock()
	if s.waitingIndex(connID) >= 0 || s.byConn[connID] != "" {
		s.mu.Unlock()
		obslog.L().Warn("match_join_drop",
			zap.String("conn_id", connID),
			zap.String("reason", "already_registered"),
		)
		return
	}

	if len(s.queue) == 0 {
		s.queue = append(s.queue, &waitingEntry{ConnID: connID, Name: name, JoinedAt: time.Now()})
		s.mu.Unlock()
		obslog.L().Info("match_enqueue", zap.String("conn_id", connID), zap.String("name", name))
		return
	}

	opp := s.queue[0]
	s.queue = s.queue[1:]
	sess, err := s.createSession(Participant{ConnID: opp.ConnID, Name: opp.Name}, Participant{ConnID: connID, Name: name})
	if err != nil {
		// Fatal to this pairing attempt only: both players return to
		// Waiting, the longest waiter keeping its place at the front.
		s.queue = append([]*waitingEntry{opp}, s.queue...)
		s.queue = append(s.queue, &waitingEntry{ConnID: connID, Name: name, JoinedAt: time.Now()})
		s.mu.Unlock()
		obslog.L().Error("match_pair_abort",
			zap.String("conn_id", connID),
			zap.String("opponent_conn_id", opp.ConnID),
			zap.Error(err),
		)
		return
	}
	snap := snapshotOf(sess)

	startWhite, _ := arenawire.Pack(arenawire.EvtGameStart, arenawire.GameStart{
		RoomID:       sess.RoomID,
		Color:        string(White),
		OpponentName: sess.Black.Name,
	})
	startBlack, _ := arenawire.Pack(arenawire.EvtGameStart, arenawire.GameStart{
		RoomID:       sess.RoomID,
		Color:        string(Black),
		OpponentName: sess.White.Name,
	})
	s.deliver(sess.White.ConnID, startWhite)
	s.deliver(sess.Black.ConnID, startBlack)
	s.mu.Unlock()

	obslog.L().Info("match_pair",
		zap.String("room_id", snap.RoomID),
		zap.String("white_id", snap.WhiteID),
		zap.String("black_id", snap.BlackID),
	)
	if s.mirror != nil {
		go s.mirror.RoomUp(context.Background(), snap)
	}
}

// createSession assigns a fresh room id and a uniform random color split.
// Caller holds the lock.
func (s *Service) createSession(p1, p2 Participant) (*Session, error) {
	if p1.ConnID == p2.ConnID {
		return nil, ErrDuplicateConn
	}
	roomID := s.newRoomID()
	if _, exists := s.rooms[roomID]; exists {
		return nil, ErrRoomCollision
	}

	white, black := p1, p2
	if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
		white, black = p2, p1
	}

	sess := &Session{
		RoomID:    roomID,
		White:     white,
		Black:     black,
		CreatedAt: time.Now(),
	}
	s.rooms[roomID] = sess
	s.byConn[p1.ConnID] = roomID
	s.byConn[p2.ConnID] = roomID
	return sess, nil
}

// Move relays a reported move to the room's other participant, payload
// verbatim. A move for a room that no longer exists, or from a connection
// that is not a participant of it, is dropped silently: the former is an
// expected race with teardown, the latter a protocol violation.
func (s *Service) Move(ctx context.Context, connID, roomID, fen, move string) {
	s.mu.Lock()
	sess, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		obslog.L().Debug("relay_drop",
			zap.String("room_id", roomID),
			zap.String("conn_id", connID),
			zap.String("reason", "room_gone"),
		)
		return
	}
	peer, ok := sess.peerOf(connID)
	if !ok {
		s.mu.Unlock()
		obslog.L().Warn("relay_drop",
			zap.String("room_id", roomID),
			zap.String("conn_id", connID),
			zap.String("reason", "not_participant"),
		)
		return
	}
	if err := s.validate.Validate(sess, move, fen); err != nil {
		s.mu.Unlock()
		obslog.L().Warn("relay_drop",
			zap.String("room_id", roomID),
			zap.String("conn_id", connID),
			zap.String("reason", "rejected_move"),
			zap.Error(err),
		)
		return
	}
	sess.Moves = append(sess.Moves, move)

	env, _ := arenawire.Pack(arenawire.EvtMoveMade, arenawire.MoveMade{FEN: fen, Move: move})
	// Delivered under the lock so moves within one room keep relay order.
	s.deliver(peer.ConnID, env)
	s.mu.Unlock()

	obslog.L().Debug("relay_move",
		zap.String("room_id", roomID),
		zap.String("from", connID),
		zap.String("to", peer.ConnID),
		zap.String("move", move),
	)
}

// Leave handles a voluntary departure.
func (s *Service) Leave(ctx context.Context, connID string) {
	s.reconcile(ctx, connID, "opponent_left")
}

// Disconnect handles a transport-level drop. Safe to invoke after Leave
// for the same connection: reconciliation is idempotent.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	s.reconcile(ctx, connID, "opponent_disconnected")
}

// reconcile removes the connection from wherever it currently lives:
// the queue when waiting, the registry (with peer notification and room
// teardown) when paired, and nowhere as a no-op.
func (s *Service) reconcile(ctx context.Context, connID, endReason string) {
	s.mu.Lock()
	if i := s.waitingIndex(connID); i >= 0 {
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.mu.Unlock()
		obslog.L().Info("reconcile_dequeue", zap.String("conn_id", connID))
		return
	}

	roomID, ok := s.byConn[connID]
	if !ok {
		// Never matched, already cleaned up, or an offline-mode client.
		s.mu.Unlock()
		return
	}
	sess := s.rooms[roomID]
	delete(s.byConn, connID)
	if sess == nil {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, roomID)
	delete(s.byConn, sess.White.ConnID)
	delete(s.byConn, sess.Black.ConnID)

	peer, hasPeer := sess.peerOf(connID)
	if hasPeer {
		env, _ := arenawire.Pack(arenawire.EvtOpponentDisconnected, nil)
		s.deliver(peer.ConnID, env)
	}
	rec := &Result{
		RoomID:    sess.RoomID,
		White:     sess.White,
		Black:     sess.Black,
		Moves:     append([]string(nil), sess.Moves...),
		EndReason: endReason,
		CreatedAt: sess.CreatedAt,
		EndedAt:   time.Now(),
	}
	s.mu.Unlock()

	obslog.L().Info("reconcile_teardown",
		zap.String("room_id", rec.RoomID),
		zap.String("conn_id", connID),
		zap.String("end_reason", endReason),
		zap.Int("moves", len(rec.Moves)),
	)
	if s.mirror != nil {
		go s.mirror.RoomDown(context.Background(), rec.RoomID)
	}
	if s.archive != nil {
		go func() {
			if err := s.archive.SaveResult(context.Background(), rec); err != nil {
				obslog.L().Error("archive_save_error", zap.String("room_id", rec.RoomID), zap.Error(err))
			}
		}()
	}
}

// LookupByConn reports the room and color a connection is currently
// paired into, if any.
func (s *Service) LookupByConn(connID string) (RoomSnapshot, Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.byConn[connID]
	if !ok {
		return RoomSnapshot{}, "", false
	}
	sess := s.rooms[roomID]
	if sess == nil {
		return RoomSnapshot{}, "", false
	}
	return snapshotOf(sess), sess.colorOf(connID), true
}

// Stats returns queue depth and live room count.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Waiting: len(s.queue), Rooms: len(s.rooms)}
}

// deliver hands an envelope to the sender. Caller holds the lock; the
// sender must not block.
func (s *Service) deliver(connID string, env arenawire.Envelope) {
	if s.out == nil {
		obslog.L().Warn("deliver_drop", zap.String("conn_id", connID), zap.String("reason", "no_sender"))
		return
	}
	s.out.Deliver(connID, env)
}

func (s *Service) waitingIndex(connID string) int {
	for i, e := range s.queue {
		if e.ConnID == connID {
			return i
		}
	}
	return -1
}

func snapshotOf(sess *Session) RoomSnapshot {
	return RoomSnapshot{
		RoomID:    sess.RoomID,
		WhiteID:   sess.White.ConnID,
		WhiteName: sess.White.Name,
		BlackID:   sess.Black.ConnID,
		BlackName: sess.Black.Name,
		CreatedAt: sess.CreatedAt,
	}
}
