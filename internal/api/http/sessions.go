package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
	"github.com/mind-engage/mindengage-testgen/internal/session"
)

type createSessionRequest struct {
	TemplateID       string     `json:"template_id" validate:"required"`
	ExaminerID       string     `json:"examiner_id"`
	TimeLimitMinutes int        `json:"time_limit_minutes" validate:"required,gt=0"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	Participants     []string   `json:"participants" validate:"required,min=1,dive,required"`
}

type participantTicket struct {
	InstanceID string `json:"instance_id"`
	Identifier string `json:"identifier"`
	AccessCode string `json:"access_code"`
}

type createSessionResponse struct {
	Session      exam.TestSession    `json:"session"`
	Participants []participantTicket `json:"participants"`
}

func CreateSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		in := session.CreateInput{
			TemplateID:       req.TemplateID,
			ExaminerID:       req.ExaminerID,
			TimeLimitMinutes: req.TimeLimitMinutes,
			Participants:     req.Participants,
		}
		if req.StartTime != nil {
			in.StartTime = req.StartTime.UTC()
		}
		if req.EndTime != nil {
			in.EndTime = req.EndTime.UTC()
		}
		created, err := svc.CreateSession(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := createSessionResponse{Session: created.Session, Participants: make([]participantTicket, 0, len(created.Instances))}
		for _, inst := range created.Instances {
			resp.Participants = append(resp.Participants, participantTicket{
				InstanceID: inst.ID,
				Identifier: inst.Identifier,
				AccessCode: inst.AccessCode,
			})
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func ListSessionsHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), exam.SessionStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

type closeSessionRequest struct {
	Status string `json:"status" validate:"required,oneof=completed aborted"`
}

func CloseSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req closeSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		sess, err := svc.Close(r.Context(), chi.URLParam(r, "sessionID"), exam.SessionStatus(req.Status))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func SessionReportHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.Report(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func PreviewTemplateHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkg, err := svc.Preview(r.Context(), chi.URLParam(r, "templateID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	}
}
