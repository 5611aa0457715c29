package engine

import (
	"context"
	"sync"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// MemoryStore is the external collaborator that persists conversation
// history, keyed by (userID, sessionID).
type MemoryStore interface {
	Get(ctx context.Context, sessionID string) ([]arc.Message, error)
	Save(ctx context.Context, userID, sessionID string, messages []arc.Message) error
	Remove(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]string, error)
}

// InProcessMemoryStore is a mutex-guarded map implementation, grounded on
// the teacher's internal/sessions.MemoryStore mutex-map pattern, adapted
// from that package's models.Message/models.Session shape to this engine's
// arc.Message history-by-session shape.
type InProcessMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]arc.Message
}

// NewInProcessMemoryStore builds an empty store.
func NewInProcessMemoryStore() *InProcessMemoryStore {
	return &InProcessMemoryStore{sessions: make(map[string][]arc.Message)}
}

func (s *InProcessMemoryStore) Get(_ context.Context, sessionID string) ([]arc.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]arc.Message(nil), s.sessions[sessionID]...), nil
}

func (s *InProcessMemoryStore) Save(_ context.Context, _ string, sessionID string, messages []arc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append([]arc.Message(nil), messages...)
	return nil
}

func (s *InProcessMemoryStore) Remove(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InProcessMemoryStore) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out, nil
}
