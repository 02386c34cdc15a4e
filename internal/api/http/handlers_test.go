package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	api "github.com/mind-engage/mindengage-testgen/internal/api/http"
	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/report"
	"github.com/mind-engage/mindengage-testgen/internal/session"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	ids := []string{"q1", "q2", "q3", "q4"}
	for _, id := range ids {
		err := store.PutQuestion(ctx, exam.Question{
			ID:              id,
			Text:            "Question " + id,
			CorrectAnswerID: "ok",
			Answers:         []exam.Answer{{ID: "ok", Text: "yes"}, {ID: "no", Text: "no"}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	_ = store.PutTemplate(ctx, exam.Template{ID: "tpl", Name: "Quiz", Pools: []exam.Pool{
		{ID: "p", QuestionsToDraw: 2, Points: 10, QuestionIDs: ids},
	}})
	_ = store.PutTemplate(ctx, exam.Template{ID: "greedy", Name: "Greedy", Pools: []exam.Pool{
		{ID: "p", QuestionsToDraw: 9, Points: 10, QuestionIDs: ids},
	}})

	r := chi.NewRouter()
	api.Mount(r, session.NewService(store))
	r.Get("/healthz", api.HealthHandler())
	r.Get("/readyz", api.ReadyHandler(nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	return res, buf.Bytes()
}

type ticket struct {
	InstanceID string `json:"instance_id"`
	Identifier string `json:"identifier"`
	AccessCode string `json:"access_code"`
}

type created struct {
	Session      exam.TestSession `json:"session"`
	Participants []ticket         `json:"participants"`
}

func TestSessionFlow(t *testing.T) {
	srv := newServer(t)

	res, body := do(t, srv, http.MethodPost, "/sessions",
		`{"template_id":"tpl","time_limit_minutes":30,"participants":["ann","ben"]}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", res.StatusCode, body)
	}
	var c created
	if err := json.Unmarshal(body, &c); err != nil {
		t.Fatal(err)
	}
	if len(c.Participants) != 2 || c.Participants[0].AccessCode == "" {
		t.Fatalf("tickets = %+v", c.Participants)
	}
	ann := c.Participants[0]

	// Finishing before opening is a precondition failure.
	if res, _ := do(t, srv, http.MethodPost, "/instances/"+ann.InstanceID+"/finish", `{}`); res.StatusCode != http.StatusConflict {
		t.Fatalf("early finish status = %d", res.StatusCode)
	}

	res, body = do(t, srv, http.MethodPost, "/access", `{"access_code":"`+ann.AccessCode+`"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("access status = %d: %s", res.StatusCode, body)
	}
	if bytes.Contains(body, []byte("correct_answer_id")) {
		t.Fatalf("participant view leaks the answer key: %s", body)
	}
	var view struct {
		StartedAt   *string                 `json:"started_at"`
		TestContent exam.TestContentPackage `json:"test_content"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.StartedAt == nil || view.TestContent.QuestionCount() != 2 {
		t.Fatalf("view = %+v", view)
	}

	first := view.TestContent.Sections[0].Questions[0].ID
	res, body = do(t, srv, http.MethodPost, "/instances/"+ann.InstanceID+"/finish", `{"`+first+`":"ok"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finish status = %d: %s", res.StatusCode, body)
	}
	var done struct {
		TotalScore *float64 `json:"total_score"`
		MaxScore   *float64 `json:"max_score"`
	}
	_ = json.Unmarshal(body, &done)
	if done.TotalScore == nil || *done.TotalScore != 5 || *done.MaxScore != 10 {
		t.Fatalf("finish body = %s", body)
	}

	if res, _ := do(t, srv, http.MethodPost, "/instances/"+ann.InstanceID+"/finish", `{}`); res.StatusCode != http.StatusConflict {
		t.Fatalf("second finish status = %d", res.StatusCode)
	}

	res, body = do(t, srv, http.MethodGet, "/sessions/"+c.Session.ID+"/report", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d: %s", res.StatusCode, body)
	}
	var rep report.SessionReport
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Statistics.TotalParticipants != 2 || rep.Statistics.CompletedCount != 1 || rep.Statistics.AverageScore != 5 {
		t.Fatalf("report stats = %+v", rep.Statistics)
	}

	res, _ = do(t, srv, http.MethodPost, "/sessions/"+c.Session.ID+"/close", `{"status":"aborted"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", res.StatusCode)
	}
	ben := c.Participants[1]
	if res, _ := do(t, srv, http.MethodPost, "/instances/"+ben.InstanceID+"/start", ""); res.StatusCode != http.StatusConflict {
		t.Fatalf("start in closed session status = %d", res.StatusCode)
	}

	res, body = do(t, srv, http.MethodGet, "/sessions?status=aborted", "")
	var list []exam.TestSession
	_ = json.Unmarshal(body, &list)
	if res.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list = %d %s", res.StatusCode, body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown template preview", http.MethodPost, "/templates/nope/preview", "", http.StatusNotFound},
		{"insufficient pool", http.MethodPost, "/templates/greedy/preview", "", http.StatusUnprocessableEntity},
		{"unknown session", http.MethodGet, "/sessions/nope", "", http.StatusNotFound},
		{"unknown report", http.MethodGet, "/sessions/nope/report", "", http.StatusNotFound},
		{"unknown instance", http.MethodGet, "/instances/nope", "", http.StatusNotFound},
		{"unknown access code", http.MethodPost, "/access", `{"access_code":"ZZZZ"}`, http.StatusNotFound},
		{"missing access code", http.MethodPost, "/access", `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/sessions", `{`, http.StatusBadRequest},
		{"no participants", http.MethodPost, "/sessions", `{"template_id":"tpl","time_limit_minutes":5,"participants":[]}`, http.StatusBadRequest},
		{"negative limit", http.MethodPost, "/sessions", `{"template_id":"tpl","time_limit_minutes":-5,"participants":["a"]}`, http.StatusBadRequest},
		{"duplicate participants", http.MethodPost, "/sessions", `{"template_id":"tpl","time_limit_minutes":5,"participants":["a","a"]}`, http.StatusBadRequest},
		{"bad close status", http.MethodPost, "/sessions/x/close", `{"status":"open"}`, http.StatusBadRequest},
		{"bad list filter", http.MethodGet, "/sessions?status=weird", "", http.StatusBadRequest},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, body := do(t, srv, tc.method, tc.path, tc.body)
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (%s)", res.StatusCode, tc.want, body)
			}
		})
	}
}

func TestFinishRejectsMalformedAnswers(t *testing.T) {
	srv := newServer(t)
	_, body := do(t, srv, http.MethodPost, "/sessions", `{"template_id":"tpl","time_limit_minutes":30,"participants":["ann"]}`)
	var c created
	_ = json.Unmarshal(body, &c)
	id := c.Participants[0].InstanceID
	do(t, srv, http.MethodPost, "/instances/"+id+"/start", "")

	for _, payload := range []string{`["ok"]`, `42`, `"ok"`} {
		if res, body := do(t, srv, http.MethodPost, "/instances/"+id+"/finish", payload); res.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %s: status = %d (%s)", payload, res.StatusCode, body)
		}
	}
	// Empty body finishes without a score.
	res, body := do(t, srv, http.MethodPost, "/instances/"+id+"/finish", "")
	if res.StatusCode != http.StatusOK || bytes.Contains(body, []byte("total_score")) {
		t.Fatalf("empty finish = %d %s", res.StatusCode, body)
	}
}

func TestReadyHandler_PingFailure(t *testing.T) {
	h := api.ReadyHandler(func(context.Context) error { return errors.New("down") })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
