package exam

import "context"

type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (Template, error) // ErrTemplateNotFound when absent
	PutTemplate(ctx context.Context, t Template) error
}

type QuestionStore interface {
	// GetQuestions resolves ids in order. Ids without a stored question are
	// skipped, not reported.
	GetQuestions(ctx context.Context, ids []string) ([]Question, error)
	PutQuestion(ctx context.Context, q Question) error
}

type InstanceStore interface {
	GetInstance(ctx context.Context, id string) (TestInstance, error) // ErrTestInstanceNotFound when absent
	GetInstanceByAccessCode(ctx context.Context, code string) (TestInstance, error)
	SaveInstance(ctx context.Context, inst TestInstance) error
	ListInstancesBySession(ctx context.Context, sessionID string) ([]TestInstance, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, id string) (TestSession, error) // ErrSessionNotFound when absent
	SaveSession(ctx context.Context, s TestSession) error
	// ListSessions filters by status; an empty status lists every session.
	ListSessions(ctx context.Context, status SessionStatus) ([]TestSession, error)
}

type Store interface {
	TemplateStore
	QuestionStore
	InstanceStore
	SessionStore
	// CreateSession stores a new session together with its instances. Either
	// all of them are stored or none is.
	CreateSession(ctx context.Context, s TestSession, instances []TestInstance) error
}
