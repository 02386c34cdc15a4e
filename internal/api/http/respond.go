package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-testgen/internal/exam"
)

var validate = validator.New()

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Internal failures are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch exam.Classify(err) {
	case exam.KindNotFound:
		status = http.StatusNotFound
	case exam.KindPrecondition:
		status = http.StatusConflict
	case exam.KindInsufficient, exam.KindDataIntegrity:
		status = http.StatusUnprocessableEntity
	case exam.KindValidation:
		status = http.StatusBadRequest
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), status)
}

// decodeBody decodes a JSON body into dst and runs its validate tags.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", f.Field(), f.Tag(), f.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field(), f.Tag()))
		}
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}
