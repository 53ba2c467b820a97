package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the best supported language from Accept-Language, falling
// back to lang, and injects the matching localizer into every request context.
func Middleware(lang string) func(http.Handler) http.Handler {
	supported := Supported()
	var matcher language.Matcher
	if len(supported) > 0 {
		matcher = language.NewMatcher(supported)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if accept := r.Header.Get("Accept-Language"); accept != "" && matcher != nil {
				if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
					_, idx, conf := matcher.Match(tags...)
					if conf != language.No {
						chosen = supported[idx].String()
					}
				}
			}
			ctx := WithLanguage(r.Context(), chosen)
			ctx = WithLocalizer(ctx, NewLocalizer(chosen))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
