package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	syncx "github.com/mind-engage/mindengage-testgen/internal/sync"
)

// EventSink receives a TestFinished event after each successful finish.
// *syncx.EventRepo satisfies it.
type EventSink interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithGrader(g Grader) Option            { return func(s *Service) { s.grader = g } }
func WithEvents(sink EventSink) Option      { return func(s *Service) { s.events = sink } }

// Service finishes test instances and records their scores.
type Service struct {
	instances exam.InstanceStore
	grader    Grader
	events    EventSink
	now       func() time.Time

	mu sync.Mutex // serializes finishes so a second caller sees the first result
}

func NewService(instances exam.InstanceStore, opts ...Option) *Service {
	s := &Service{
		instances: instances,
		grader:    NewSingleChoiceGrader(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FinishRaw finishes an instance with a raw JSON answers payload. Checks run in
// order: instance exists, was started, is not finished yet, payload is an object.
func (s *Service) FinishRaw(ctx context.Context, instanceID string, raw json.RawMessage) (exam.TestInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.load(ctx, instanceID)
	if err != nil {
		return exam.TestInstance{}, err
	}
	answers, err := exam.DecodeAnswers(raw)
	if err != nil {
		return exam.TestInstance{}, err
	}
	return s.complete(ctx, inst, answers)
}

// Finish is FinishRaw for callers holding decoded answers. Nil answers finish
// the instance without scoring it (abandoned or timed out).
func (s *Service) Finish(ctx context.Context, instanceID string, answers exam.Answers) (exam.TestInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, err := s.load(ctx, instanceID)
	if err != nil {
		return exam.TestInstance{}, err
	}
	return s.complete(ctx, inst, answers)
}

func (s *Service) load(ctx context.Context, instanceID string) (exam.TestInstance, error) {
	inst, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return exam.TestInstance{}, err
	}
	if inst.StartedAt == nil {
		return exam.TestInstance{}, fmt.Errorf("%w: %s", exam.ErrTestNotStarted, instanceID)
	}
	if inst.CompletedAt != nil {
		return exam.TestInstance{}, fmt.Errorf("%w: %s", exam.ErrTestAlreadyFinished, instanceID)
	}
	return inst, nil
}

// complete applies every finish field to a copy and persists it in one save.
func (s *Service) complete(ctx context.Context, inst exam.TestInstance, answers exam.Answers) (exam.TestInstance, error) {
	updated := inst.Clone()
	completedAt := s.now()
	updated.CompletedAt = &completedAt

	if answers != nil {
		sc, err := ScorePackage(ctx, s.grader, inst.TestContent, answers)
		if err != nil {
			return exam.TestInstance{}, err
		}
		total, maxScore := sc.Total, sc.Max
		taken := completedAt.Sub(*inst.StartedAt).Minutes()
		updated.Answers = answers.Clone()
		updated.TotalScore = &total
		updated.MaxScore = &maxScore
		updated.TimeTakenMinutes = &taken
	}

	if err := s.instances.SaveInstance(ctx, updated); err != nil {
		return exam.TestInstance{}, err
	}
	s.emit(ctx, updated)
	return updated, nil
}

type finishedPayload struct {
	SessionID        string   `json:"session_id"`
	Identifier       string   `json:"identifier"`
	Submitted        bool     `json:"submitted"`
	TotalScore       *float64 `json:"total_score,omitempty"`
	MaxScore         *float64 `json:"max_score,omitempty"`
	TimeTakenMinutes *float64 `json:"time_taken_minutes,omitempty"`
}

func (s *Service) emit(ctx context.Context, inst exam.TestInstance) {
	if s.events == nil {
		return
	}
	ev, err := syncx.NewEvent(syncx.TypeTestFinished, inst.ID, finishedPayload{
		SessionID:        inst.SessionID,
		Identifier:       inst.Identifier,
		Submitted:        inst.Answers != nil,
		TotalScore:       inst.TotalScore,
		MaxScore:         inst.MaxScore,
		TimeTakenMinutes: inst.TimeTakenMinutes,
	})
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		log.Printf("[grading] event for instance %s not recorded: %v", inst.ID, err)
	}
}
