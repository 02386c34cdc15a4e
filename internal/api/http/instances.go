package http

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/session"
)

// instanceView is what a participant gets to see: no answer keys, and scores
// only once the test is finished.
type instanceView struct {
	ID               string                  `json:"id"`
	SessionID        string                  `json:"session_id"`
	Identifier       string                  `json:"identifier"`
	TestContent      exam.TestContentPackage `json:"test_content"`
	StartedAt        *time.Time              `json:"started_at,omitempty"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
	Answers          exam.Answers            `json:"answers,omitempty"`
	TotalScore       *float64                `json:"total_score,omitempty"`
	MaxScore         *float64                `json:"max_score,omitempty"`
	TimeTakenMinutes *float64                `json:"time_taken_minutes,omitempty"`
}

func participantView(inst exam.TestInstance) instanceView {
	return instanceView{
		ID:               inst.ID,
		SessionID:        inst.SessionID,
		Identifier:       inst.Identifier,
		TestContent:      inst.TestContent.ParticipantView(),
		StartedAt:        inst.StartedAt,
		CompletedAt:      inst.CompletedAt,
		Answers:          inst.Answers,
		TotalScore:       inst.TotalScore,
		MaxScore:         inst.MaxScore,
		TimeTakenMinutes: inst.TimeTakenMinutes,
	}
}

type accessRequest struct {
	AccessCode string `json:"access_code" validate:"required"`
}

func AccessHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accessRequest
		if !decodeBody(w, r, &req) {
			return
		}
		inst, err := svc.Access(r.Context(), req.AccessCode)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, participantView(inst))
	}
}

func GetInstanceHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := svc.Instance(r.Context(), chi.URLParam(r, "instanceID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, participantView(inst))
	}
}

func StartInstanceHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := svc.Start(r.Context(), chi.URLParam(r, "instanceID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, participantView(inst))
	}
}

// FinishInstanceHandler takes the answers object as the whole body. An empty
// body finishes without submitting.
func FinishInstanceHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		inst, err := svc.Finish(r.Context(), chi.URLParam(r, "instanceID"), raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, participantView(inst))
	}
}
