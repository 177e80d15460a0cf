package i18n

import "net/http"

// LangCookie remembers an explicit language choice.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. The language
// comes from the ?lang= parameter, the lang cookie or Accept-Language, in
// that order, and falls back to defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prefs := []string{r.URL.Query().Get("lang")}
			if c, err := r.Cookie(LangCookie); err == nil {
				prefs = append(prefs, c.Value)
			}
			prefs = append(prefs, r.Header.Get("Accept-Language"), defaultLang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(Match(prefs...), defaultLang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
