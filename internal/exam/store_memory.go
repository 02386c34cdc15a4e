package exam

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
	questions map[string]Question
	instances map[string]TestInstance
	sessions  map[string]TestSession
}

// NewInMemoryStore returns a map-backed Store. Values are copied on the way in
// and out, so callers never alias stored data.
func NewInMemoryStore() Store {
	return &memoryStore{
		templates: map[string]Template{},
		questions: map[string]Question{},
		instances: map[string]TestInstance{},
		sessions:  map[string]TestSession{},
	}
}

func (m *memoryStore) GetTemplate(_ context.Context, id string) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t.Clone(), nil
}

func (m *memoryStore) PutTemplate(_ context.Context, t Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t.Clone()
	return nil
}

func (m *memoryStore) GetQuestions(_ context.Context, ids []string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			out = append(out, q.Clone())
		}
	}
	return out, nil
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q.Clone()
	return nil
}

func (m *memoryStore) GetInstance(_ context.Context, id string) (TestInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return TestInstance{}, fmt.Errorf("%w: %s", ErrTestInstanceNotFound, id)
	}
	return inst.Clone(), nil
}

func (m *memoryStore) GetInstanceByAccessCode(_ context.Context, code string) (TestInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.AccessCode == code {
			return inst.Clone(), nil
		}
	}
	return TestInstance{}, fmt.Errorf("%w: access code %s", ErrTestInstanceNotFound, code)
}

func (m *memoryStore) SaveInstance(_ context.Context, inst TestInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *memoryStore) ListInstancesBySession(_ context.Context, sessionID string) ([]TestInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TestInstance, 0)
	for _, inst := range m.instances {
		if inst.SessionID == sessionID {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryStore) GetSession(_ context.Context, id string) (TestSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return TestSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *memoryStore) SaveSession(_ context.Context, s TestSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryStore) CreateSession(_ context.Context, s TestSession, instances []TestInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make(map[string]struct{}, len(m.instances)+len(instances))
	for _, inst := range m.instances {
		codes[inst.AccessCode] = struct{}{}
	}
	for _, inst := range instances {
		if _, taken := codes[inst.AccessCode]; taken {
			return &RepositoryError{Op: "create session", Msg: fmt.Sprintf("access code %s already in use", inst.AccessCode)}
		}
		codes[inst.AccessCode] = struct{}{}
	}
	m.sessions[s.ID] = s
	for _, inst := range instances {
		m.instances[inst.ID] = inst.Clone()
	}
	return nil
}

func (m *memoryStore) ListSessions(_ context.Context, status SessionStatus) ([]TestSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TestSession, 0)
	for _, s := range m.sessions {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
