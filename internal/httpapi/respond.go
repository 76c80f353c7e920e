package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/skorpland/powermemo/internal/perr"
)

// envelope is the response shape every endpoint returns (spec §6):
// errno = 0 on success, HTTP status mirrors the error category otherwise.
type envelope struct {
	Data   any    `json:"data,omitempty"`
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data, Errno: 0})
}

// respondError maps err to its HTTP status and envelope form. Typed *perr.Error
// values carry their own status; anything else is reported as Internal so a
// bug in a component never leaks raw Go error text as a 200.
func respondError(w http.ResponseWriter, err error) {
	if pe, ok := perr.As(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(pe.HTTPStatus())
		_ = json.NewEncoder(w).Encode(envelope{Errno: int(pe.Code), Errmsg: pe.Message})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(envelope{Errno: int(perr.CodeInternalServerError), Errmsg: err.Error()})
}
