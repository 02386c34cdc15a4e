package exam_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
)

func TestDecodeAnswers(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    exam.Answers
		wantErr bool
	}{
		{name: "empty body", raw: ``, want: nil},
		{name: "null", raw: ` null `, want: nil},
		{name: "empty object", raw: `{}`, want: exam.Answers{}},
		{name: "null entries dropped", raw: `{"q1":"a","q2":null}`, want: exam.Answers{"q1": "a"}},
		{name: "array", raw: `["a"]`, wantErr: true},
		{name: "string", raw: `"a"`, wantErr: true},
		{name: "non-string values dropped", raw: `{"q1":"a","q2":7,"q3":{"id":"b"},"q4":true}`, want: exam.Answers{"q1": "a"}},
		{name: "broken json", raw: `{"q1":`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := exam.DecodeAnswers(json.RawMessage(tc.raw))
			if tc.wantErr {
				if exam.Classify(err) != exam.KindValidation {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if (got == nil) != (tc.want == nil) || len(got) != len(tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("got[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want exam.Kind
	}{
		{fmt.Errorf("%w: x", exam.ErrTemplateNotFound), exam.KindNotFound},
		{fmt.Errorf("%w: x", exam.ErrSessionNotFound), exam.KindNotFound},
		{fmt.Errorf("%w: x", exam.ErrTestInstanceNotFound), exam.KindNotFound},
		{exam.ErrTestNotStarted, exam.KindPrecondition},
		{exam.ErrTestAlreadyFinished, exam.KindPrecondition},
		{exam.ErrSessionClosed, exam.KindPrecondition},
		{fmt.Errorf("wrapped: %w", &exam.InsufficientQuestionsError{PoolID: "p", Required: 3, Available: 1}), exam.KindInsufficient},
		{&exam.DataIntegrityError{QuestionID: "q"}, exam.KindDataIntegrity},
		{&exam.RepositoryError{Op: "finish", Msg: "bad"}, exam.KindValidation},
		{&exam.RepositoryError{Op: "save", Err: errors.New("disk")}, exam.KindInternal},
		{errors.New("boom"), exam.KindInternal},
	}
	for _, tc := range tests {
		if got := exam.Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
