package archive

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/chess-arena-go/internal/match"
)

// buildPGN renders an archived game as PGN text. Rooms always end by a
// departure rather than a scored result, so the result token stays "*"
// and the Termination header carries the end reason. Movetext is
// normalized to SAN when the relayed notations replay cleanly; raw
// tokens are kept otherwise so nothing the clients played is lost.
func buildPGN(rec *match.Result) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.White.Name)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.Black.Name)))
	if strings.TrimSpace(rec.EndReason) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(rec.EndReason)))
	}
	b.WriteString("[Result \"*\"]\n\n")

	moves := sanMoves(rec.Moves)
	if moves == nil {
		moves = rec.Moves
	}
	for i := 0; i < len(moves); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(moves[i])))
		if i+1 < len(moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString("*")
	return b.String()
}

// sanMoves replays the relayed notations from the start position, UCI
// first with SAN fallback, and re-encodes each as SAN. Returns nil when
// any token does not replay.
func sanMoves(raw []string) []string {
	game := nchess.NewGame()
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimSpace(tok)
		pos := game.Position()
		mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(tok))
		if err != nil {
			if mv, err = (nchess.AlgebraicNotation{}).Decode(pos, tok); err != nil {
				return nil
			}
		}
		if err := game.Move(mv, nil); err != nil {
			return nil
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, mv))
	}
	return out
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
