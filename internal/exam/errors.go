package exam

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrTemplateNotFound     = errors.New("template not found")
	ErrTestInstanceNotFound = errors.New("test instance not found")
	ErrSessionNotFound      = errors.New("session not found")

	ErrTestNotStarted      = errors.New("test not started")
	ErrTestAlreadyFinished = errors.New("test already finished")
	ErrSessionClosed       = errors.New("session is not open")
)

// InsufficientQuestionsError aborts a materialization: a pool references fewer
// questions than it must draw.
type InsufficientQuestionsError struct {
	PoolID    string
	Required  int
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("pool %s: insufficient questions (required %d, available %d)", e.PoolID, e.Required, e.Available)
}

// DataIntegrityError is only raised when strict integrity checks are enabled.
type DataIntegrityError struct {
	PoolID     string
	QuestionID string
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	if e.PoolID != "" {
		return fmt.Sprintf("data integrity: pool %s question %s: %s", e.PoolID, e.QuestionID, e.Reason)
	}
	return fmt.Sprintf("data integrity: question %s: %s", e.QuestionID, e.Reason)
}

// RepositoryError covers malformed input rejected before persisting and
// failures of the underlying store.
type RepositoryError struct {
	Op  string
	Msg string
	Err error
}

func (e *RepositoryError) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *RepositoryError) Unwrap() error { return e.Err }

type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindPrecondition  Kind = "precondition"
	KindInsufficient  Kind = "insufficient"
	KindDataIntegrity Kind = "data_integrity"
	KindValidation    Kind = "validation"
	KindInternal      Kind = "internal"
)

// Classify buckets err so transport layers can pick a status code.
func Classify(err error) Kind {
	var (
		insufficient *InsufficientQuestionsError
		integrity    *DataIntegrityError
		repo         *RepositoryError
	)
	switch {
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrTestInstanceNotFound),
		errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrTestNotStarted),
		errors.Is(err, ErrTestAlreadyFinished),
		errors.Is(err, ErrSessionClosed):
		return KindPrecondition
	case errors.As(err, &insufficient):
		return KindInsufficient
	case errors.As(err, &integrity):
		return KindDataIntegrity
	case errors.As(err, &repo):
		if repo.Err == nil {
			return KindValidation
		}
		return KindInternal
	default:
		return KindInternal
	}
}

// DecodeAnswers parses a submitted answers payload. An empty body or JSON null
// means nothing was submitted and yields nil. Only a payload that is not a JSON
// object is rejected. Entries whose value is not a string carry no answer id;
// they are dropped and score nothing.
func DecodeAnswers(raw json.RawMessage) (Answers, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &RepositoryError{Op: "finish", Msg: "answers must be an object of question id to answer id"}
	}
	out := make(Answers, len(obj))
	for qid, v := range obj {
		if v = bytes.TrimSpace(v); len(v) == 0 || string(v) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		out[qid] = s
	}
	return out, nil
}
