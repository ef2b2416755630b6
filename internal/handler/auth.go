package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/examgrader/internal/i18n"
)

// TeacherUser is the basic-auth user name accepted by the API.
const TeacherUser = "teacher"

// HashPassword returns a bcrypt hash for the admin password. Values that are
// already bcrypt hashes are returned unchanged.
func HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if _, err := bcrypt.Cost([]byte(password)); err == nil {
		return []byte(password), nil
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// requireTeacher checks HTTP basic credentials when a password is configured.
func (h *Handler) requireTeacher(next http.Handler) http.Handler {
	if len(h.config.AdminPasswordHash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(user)), []byte(TeacherUser)) == 1
		if !ok || !userOK || bcrypt.CompareHashAndPassword(h.config.AdminPasswordHash, []byte(pass)) != nil {
			if ok {
				slog.Warn("rejected credentials", "user", user, "remote", r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="examgrader", charset="UTF-8"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error:   "unauthorized",
				Message: appI18n.T(r.Context(), "ErrUnauthorized"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
