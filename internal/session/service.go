// Package session runs the lifecycle of a test session: creating it with one
// materialized instance per participant, letting participants open and finish
// their instance, closing the session and reporting on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/grading"
	"github.com/mind-engage/mindengage-testgen/internal/materialize"
	"github.com/mind-engage/mindengage-testgen/internal/report"
	"github.com/mind-engage/mindengage-testgen/internal/seedrand"
	"github.com/mind-engage/mindengage-testgen/internal/selection"
)

const (
	accessCodeLen      = 8
	accessCodeAttempts = 16
)

type Option func(*Service)

func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option   { return func(s *Service) { s.newID = f } }
func WithEvents(sink grading.EventSink) Option { return func(s *Service) { s.events = sink } }
func WithStrict(b bool) Option                 { return func(s *Service) { s.strict = b } }
func WithCodeSource(r seedrand.Source) Option  { return func(s *Service) { s.codes = r } }

// WithSeed makes materialization reproducible. Each participant draws from a
// generator derived from the seed, the template and their identifier.
func WithSeed(seed string) Option { return func(s *Service) { s.seed = seed } }

type Service struct {
	store   exam.Store
	grading *grading.Service
	reports *report.Builder

	events grading.EventSink
	codes  seedrand.Source
	now    func() time.Time
	newID  func() string
	seed   string
	strict bool

	mu sync.Mutex // guards read-modify-write of instances and sessions
}

func NewService(store exam.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		codes: seedrand.Global(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	gopts := []grading.Option{grading.WithClock(s.now)}
	if s.events != nil {
		gopts = append(gopts, grading.WithEvents(s.events))
	}
	s.grading = grading.NewService(store, gopts...)
	s.reports = report.NewBuilder(store, store, report.WithClock(s.now))
	return s
}

func (s *Service) materializer(seedParts ...string) *materialize.Materializer {
	var r seedrand.Source
	if s.seed != "" {
		r = seedrand.New(seedrand.Derive(s.seed, seedParts...))
	}
	engine := selection.New(r, selection.WithStrict(s.strict))
	return materialize.New(s.store, s.store, engine,
		materialize.WithClock(s.now),
		materialize.WithIDGenerator(s.newID),
		materialize.WithStrict(s.strict))
}

type CreateInput struct {
	TemplateID       string
	ExaminerID       string
	TimeLimitMinutes int
	StartTime        time.Time // zero means now
	EndTime          time.Time // zero means no end
	Participants     []string
}

func (in CreateInput) validate() error {
	fail := func(msg string) error { return &exam.RepositoryError{Op: "create session", Msg: msg} }
	if strings.TrimSpace(in.TemplateID) == "" {
		return fail("template id is required")
	}
	if in.TimeLimitMinutes <= 0 {
		return fail("time limit must be positive")
	}
	if !in.EndTime.IsZero() && !in.StartTime.IsZero() && !in.EndTime.After(in.StartTime) {
		return fail("end time must be after start time")
	}
	if len(in.Participants) == 0 {
		return fail("at least one participant is required")
	}
	seen := make(map[string]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		if strings.TrimSpace(p) == "" {
			return fail("participant identifier must not be blank")
		}
		if _, dup := seen[p]; dup {
			return fail(fmt.Sprintf("duplicate participant %q", p))
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Created is a new session with its instances, in participant order.
type Created struct {
	Session   exam.TestSession    `json:"session"`
	Instances []exam.TestInstance `json:"instances"`
}

// CreateSession materializes one package per participant. Nothing is stored
// unless every participant got a package.
func (s *Service) CreateSession(ctx context.Context, in CreateInput) (Created, error) {
	if err := in.validate(); err != nil {
		return Created{}, err
	}

	now := s.now()
	sess := exam.TestSession{
		ID:               s.newID(),
		TemplateID:       in.TemplateID,
		ExaminerID:       in.ExaminerID,
		TimeLimitMinutes: in.TimeLimitMinutes,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Status:           exam.SessionOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = now
	}

	used := make(map[string]struct{}, len(in.Participants))
	instances := make([]exam.TestInstance, 0, len(in.Participants))
	for _, participant := range in.Participants {
		pkg, err := s.materializer(in.TemplateID, participant).Materialize(ctx, in.TemplateID)
		if err != nil {
			return Created{}, fmt.Errorf("materialize for %s: %w", participant, err)
		}
		code, err := s.accessCode(ctx, used)
		if err != nil {
			return Created{}, err
		}
		instances = append(instances, exam.TestInstance{
			ID:          s.newID(),
			SessionID:   sess.ID,
			Identifier:  participant,
			AccessCode:  code,
			TestContent: pkg,
			CreatedAt:   now,
		})
	}

	if err := s.store.CreateSession(ctx, sess, instances); err != nil {
		return Created{}, err
	}
	log.Printf("[session] created %s from template %s with %d participants", sess.ID, sess.TemplateID, len(instances))
	return Created{Session: sess, Instances: instances}, nil
}

func (s *Service) accessCode(ctx context.Context, used map[string]struct{}) (string, error) {
	for range accessCodeAttempts {
		code := seedrand.Code(s.codes, accessCodeLen)
		if _, taken := used[code]; taken {
			continue
		}
		_, err := s.store.GetInstanceByAccessCode(ctx, code)
		if errors.Is(err, exam.ErrTestInstanceNotFound) {
			used[code] = struct{}{}
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", &exam.RepositoryError{Op: "create session", Msg: "could not allocate a unique access code"}
}

func (s *Service) Get(ctx context.Context, sessionID string) (exam.TestSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) List(ctx context.Context, status exam.SessionStatus) ([]exam.TestSession, error) {
	if status != "" && !status.Valid() {
		return nil, &exam.RepositoryError{Op: "list sessions", Msg: fmt.Sprintf("unknown status %q", status)}
	}
	return s.store.ListSessions(ctx, status)
}

func (s *Service) Instance(ctx context.Context, instanceID string) (exam.TestInstance, error) {
	return s.store.GetInstance(ctx, instanceID)
}

// Access opens the instance behind an access code. The first access starts
// the clock; later ones return the instance unchanged.
func (s *Service) Access(ctx context.Context, accessCode string) (exam.TestInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.store.GetInstanceByAccessCode(ctx, strings.ToUpper(strings.TrimSpace(accessCode)))
	if err != nil {
		return exam.TestInstance{}, err
	}
	return s.start(ctx, inst)
}

func (s *Service) Start(ctx context.Context, instanceID string) (exam.TestInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return exam.TestInstance{}, err
	}
	return s.start(ctx, inst)
}

func (s *Service) start(ctx context.Context, inst exam.TestInstance) (exam.TestInstance, error) {
	if inst.StartedAt != nil {
		return inst, nil
	}
	sess, err := s.store.GetSession(ctx, inst.SessionID)
	if err != nil {
		return exam.TestInstance{}, err
	}
	if sess.Status != exam.SessionOpen {
		return exam.TestInstance{}, fmt.Errorf("%w: %s is %s", exam.ErrSessionClosed, sess.ID, sess.Status)
	}
	startedAt := s.now()
	updated := inst.Clone()
	updated.StartedAt = &startedAt
	if err := s.store.SaveInstance(ctx, updated); err != nil {
		return exam.TestInstance{}, err
	}
	return updated, nil
}

func (s *Service) Finish(ctx context.Context, instanceID string, raw []byte) (exam.TestInstance, error) {
	return s.grading.FinishRaw(ctx, instanceID, raw)
}

func (s *Service) Report(ctx context.Context, sessionID string) (report.SessionReport, error) {
	return s.reports.Build(ctx, sessionID)
}

// Preview materializes a template once without storing anything.
func (s *Service) Preview(ctx context.Context, templateID string) (exam.TestContentPackage, error) {
	return s.materializer(templateID, "preview").Materialize(ctx, templateID)
}

// Close ends an open session as completed or aborted.
func (s *Service) Close(ctx context.Context, sessionID string, status exam.SessionStatus) (exam.TestSession, error) {
	if status != exam.SessionCompleted && status != exam.SessionAborted {
		return exam.TestSession{}, &exam.RepositoryError{Op: "close session", Msg: fmt.Sprintf("cannot close with status %q", status)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close(ctx, sessionID, status)
}

func (s *Service) close(ctx context.Context, sessionID string, status exam.SessionStatus) (exam.TestSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return exam.TestSession{}, err
	}
	if sess.Status != exam.SessionOpen {
		return exam.TestSession{}, fmt.Errorf("%w: %s is %s", exam.ErrSessionClosed, sess.ID, sess.Status)
	}
	sess.Status = status
	sess.UpdatedAt = s.now()
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return exam.TestSession{}, err
	}
	log.Printf("[session] %s closed as %s", sess.ID, status)
	return sess, nil
}

type SweepResult struct {
	Sessions int // open sessions inspected
	Finished int // timed out instances finished without answers
	Closed   int // sessions marked completed
}

// SweepTimedOut finishes every timed out instance of the open sessions without
// scoring it, then completes sessions whose end time has passed once nobody
// is still in progress.
func (s *Service) SweepTimedOut(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	sessions, err := s.store.ListSessions(ctx, exam.SessionOpen)
	if err != nil {
		return res, err
	}
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Sessions++
		instances, err := s.store.ListInstancesBySession(ctx, sess.ID)
		if err != nil {
			return res, err
		}
		inProgress := 0
		for _, inst := range instances {
			switch report.Status(inst, sess, s.now()) {
			case report.StatusTimedOut:
				_, err := s.grading.Finish(ctx, inst.ID, nil)
				switch {
				case err == nil:
					res.Finished++
				case errors.Is(err, exam.ErrTestAlreadyFinished):
				default:
					return res, fmt.Errorf("finish timed out instance %s: %w", inst.ID, err)
				}
			case report.StatusInProgress:
				inProgress++
			}
		}
		if sess.EndTime.IsZero() || !s.now().After(sess.EndTime) || inProgress > 0 {
			continue
		}
		s.mu.Lock()
		_, err = s.close(ctx, sess.ID, exam.SessionCompleted)
		s.mu.Unlock()
		switch {
		case err == nil:
			res.Closed++
		case errors.Is(err, exam.ErrSessionClosed):
		default:
			return res, err
		}
	}
	return res, nil
}
