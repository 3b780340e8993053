package match

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// MoveValidator lets the relay gate a reported move before forwarding it.
// Validate runs under the service lock and must not block on I/O.
type MoveValidator interface {
	Validate(sess *Session, move, claimedFEN string) error
}

type nopValidator struct{}

func (nopValidator) Validate(*Session, string, string) error { return nil }

// NopValidator returns the blind forwarder: the relay trusts the sender's
// client-reported move and resulting position.
func NopValidator() MoveValidator { return nopValidator{} }

var (
	errIllegalMove      = errors.New("illegal move")
	errPositionMismatch = errors.New("reported position does not match move")
)

type rulesValidator struct{}

// RulesValidator replays the room's accepted moves from the start position,
// rejects any move the rules engine cannot decode as legal there, and when
// the sender reports a resulting position, rejects moves whose reported
// position disagrees with the computed one.
func RulesValidator() MoveValidator { return rulesValidator{} }

func (rulesValidator) Validate(sess *Session, move, claimedFEN string) error {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return errIllegalMove
	}
	game := reconstruct(sess.Moves)
	if game == nil {
		return fmt.Errorf("reconstruct room %s: stored moves invalid", sess.RoomID)
	}
	pos := game.Position()
	mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw))
	if err != nil {
		if mv, err = (nchess.AlgebraicNotation{}).Decode(pos, raw); err != nil {
			return errIllegalMove
		}
	}
	if claimed := strings.TrimSpace(claimedFEN); claimed != "" {
		if err := game.Move(mv, nil); err != nil {
			return errIllegalMove
		}
		if !fenCoreEqual(game.FEN(), claimed) {
			return errPositionMismatch
		}
	}
	return nil
}

// fenCoreEqual compares piece placement, side to move, castling rights and
// the en passant square. The two move counters are left out: clients count
// from their own game start and drift on them without the position differing.
func fenCoreEqual(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 4 || len(fb) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}

// reconstruct replays notations from the start position, accepting UCI
// first and SAN as fallback, matching what clients report.
func reconstruct(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(strings.ToLower(mv), nchess.UCINotation{}, nil); err == nil {
			continue
		}
		if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}
