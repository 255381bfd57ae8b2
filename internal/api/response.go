package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Return codes carried in envelope.Ret. Anything non-zero is a failure the
// front-end surfaces via Msg.
const (
	retOK   = 0
	retFail = 1
)

// envelope is the response shape shared by every /v1/pwa route.
type envelope struct {
	Data      any    `json:"data"`
	Ret       int    `json:"ret"`
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Ret: retOK, Msg: "ok", Timestamp: s.clock.Now().Unix()})
}

// fail reports a handled failure. The HTTP status stays 200 for domain
// outcomes so clients read ret/msg; transport problems pass their own status.
func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Data: nil, Ret: retFail, Msg: msg, Timestamp: s.clock.Now().Unix()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Ret: retFail, Msg: msg, Timestamp: time.Now().Unix()})
}
