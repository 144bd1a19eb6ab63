package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

// AuthResponse is the body of every /api/auth response.
type AuthResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Token        string      `json:"token,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
	User         *users.User `json:"user,omitempty"`
}

func failure(message string) AuthResponse {
	return AuthResponse{Success: false, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
