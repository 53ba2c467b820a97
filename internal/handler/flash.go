package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pavelanni/questionnaire/internal/model"
)

const flashCookieName = "flash"

// flashMiddleware moves pending flashes from the cookie into the request
// context and clears the cookie, so each notice is shown once.
func (h *Handler) flashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(flashCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		h.setFlashCookie(w, "", -1)

		var flashes []model.Flash
		data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
		if err == nil {
			err = json.Unmarshal(data, &flashes)
		}
		if err != nil {
			slog.Debug("discarding malformed flash cookie", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		ctx := model.ContextWithFlashes(r.Context(), flashes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setFlashCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     h.cookiePath(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// addFlash queues a notice for the next rendered page. Flashes of the current
// request that were not rendered are carried over.
func (h *Handler) addFlash(w http.ResponseWriter, r *http.Request, level model.FlashLevel, msg string) {
	flashes := append(slices.Clip(model.FlashesFromContext(r.Context())), model.Flash{Level: level, Message: msg})
	data, err := json.Marshal(flashes)
	if err != nil {
		slog.Error("failed to encode flash", "error", err)
		return
	}
	h.setFlashCookie(w, base64.RawURLEncoding.EncodeToString(data), 60)
}

// withFlash returns r with a notice added for the page rendered in this
// response.
func withFlash(r *http.Request, level model.FlashLevel, msg string) *http.Request {
	flashes := append(slices.Clip(model.FlashesFromContext(r.Context())), model.Flash{Level: level, Message: msg})
	return r.WithContext(model.ContextWithFlashes(r.Context(), flashes))
}
