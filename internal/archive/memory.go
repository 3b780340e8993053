package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/kapu/chess-arena-go/internal/match"
)

// Memory is a development-only archiver used when no database is
// configured. Keeps everything in process memory.
type Memory struct {
	mu      sync.RWMutex
	byRoom  map[string]*match.Result
	ordered []*match.Result
}

func NewMemory() *Memory {
	return &Memory{byRoom: make(map[string]*match.Result)}
}

func (m *Memory) SaveResult(ctx context.Context, rec *match.Result) error {
	if m == nil || rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Moves = append([]string(nil), rec.Moves...)
	if _, exists := m.byRoom[rec.RoomID]; !exists {
		m.ordered = append(m.ordered, &cp)
	} else {
		for i, r := range m.ordered {
			if r.RoomID == rec.RoomID {
				m.ordered[i] = &cp
				break
			}
		}
	}
	m.byRoom[rec.RoomID] = &cp
	return nil
}

// Recent returns the most recently ended games, newest first.
func (m *Memory) Recent(limit int) []*match.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]*match.Result(nil), m.ordered...)
	sort.Slice(items, func(i, j int) bool { return items[i].EndedAt.After(items[j].EndedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
