package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kapu/chess-arena-go/internal/match"
)

func testResult(roomID string, endedAt time.Time) *match.Result {
	return &match.Result{
		RoomID:    roomID,
		White:     match.Participant{ConnID: "w", Name: "Alice"},
		Black:     match.Participant{ConnID: "b", Name: "Bob"},
		Moves:     []string{"e4", "e5", "Nf3"},
		EndReason: "opponent_disconnected",
		CreatedAt: endedAt.Add(-5 * time.Minute),
		EndedAt:   endedAt,
	}
}

func TestMemorySaveAndRecent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.SaveResult(ctx, testResult("r1", now.Add(-time.Hour))); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := m.SaveResult(ctx, testResult("r2", now)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	recent := m.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 results, got %d", len(recent))
	}
	if recent[0].RoomID != "r2" {
		t.Fatalf("expected newest first, got %s", recent[0].RoomID)
	}
	if got := m.Recent(1); len(got) != 1 {
		t.Fatalf("limit ignored: %d", len(got))
	}
}

func TestMemorySaveIdempotentPerRoom(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	rec := testResult("r1", now)
	if err := m.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	rec.EndReason = "opponent_left"
	if err := m.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	recent := m.Recent(10)
	if len(recent) != 1 {
		t.Fatalf("duplicate room archived twice: %d", len(recent))
	}
	if recent[0].EndReason != "opponent_left" {
		t.Fatalf("second save did not overwrite: %s", recent[0].EndReason)
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := buildPGN(testResult("r1", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)))

	for _, want := range []string{
		`[White "Alice"]`,
		`[Black "Bob"]`,
		`[Date "2026.03.14"]`,
		`[Termination "opponent_disconnected"]`,
		`[Result "*"]`,
		"1. e4 e5 2. Nf3",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestBuildPGNNormalizesUCIMovetext(t *testing.T) {
	rec := testResult("r1", time.Now())
	rec.Moves = []string{"e2e4", "e7e5", "g1f3"}
	pgn := buildPGN(rec)
	if !strings.Contains(pgn, "1. e4 e5 2. Nf3") {
		t.Fatalf("UCI movetext not normalized to SAN:\n%s", pgn)
	}
}

func TestBuildPGNKeepsUnreplayableMovetext(t *testing.T) {
	rec := testResult("r1", time.Now())
	rec.Moves = []string{"e2e4", "xx"}
	pgn := buildPGN(rec)
	if !strings.Contains(pgn, "1. e2e4 xx") {
		t.Fatalf("raw movetext lost on replay failure:\n%s", pgn)
	}
}

func TestBuildPGNSanitizesNames(t *testing.T) {
	rec := testResult("r1", time.Now())
	rec.White.Name = `Al"ice\`
	pgn := buildPGN(rec)
	if strings.Contains(pgn, `Al"ice`) {
		t.Fatalf("quotes not sanitized:\n%s", pgn)
	}
}
