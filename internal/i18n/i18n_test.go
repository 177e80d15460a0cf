package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Exam Practice" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Practice'", got)
	}
	if got := T(ctx, "NotYetSubmitted"); got != "This exam has not been submitted yet." {
		t.Errorf("T(NotYetSubmitted) = %q", got)
	}
}

func TestTranslateVietnamese(t *testing.T) {
	ctx := initLang(t, "vi")

	if got := T(ctx, "AppTitle"); got != "Luyện thi" {
		t.Errorf("T(AppTitle) = %q, want 'Luyện thi'", got)
	}
	if got := T(ctx, "Correct"); got != "Đúng" {
		t.Errorf("T(Correct) = %q, want 'Đúng'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsCount", 1); got != "1 question" {
		t.Errorf("Tp(QuestionsCount, 1) = %q, want '1 question'", got)
	}
	if got := Tp(ctx, "QuestionsCount", 5); got != "5 questions" {
		t.Errorf("Tp(QuestionsCount, 5) = %q, want '5 questions'", got)
	}

	vi := initLang(t, "vi")
	if got := Tp(vi, "QuestionsCount", 1); got != "1 câu hỏi" {
		t.Errorf("Tp(QuestionsCount, 1) in vi = %q, want '1 câu hỏi'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrInsufficientPool", map[string]any{"Available": 5, "Requested": 20})
	if got != "Not enough questions: 5 available, 20 requested." {
		t.Errorf("Td(ErrInsufficientPool) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitRejectsUnsupportedLanguage(t *testing.T) {
	if err := Init("ru"); err == nil {
		t.Error("expected error for a language without a locale file")
	}
	if err := Init("not a tag!"); err == nil {
		t.Error("expected error for a malformed tag")
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
	}{
		{[]string{"vi"}, "vi"},
		{[]string{"vi-VN,vi;q=0.9,en;q=0.8"}, "vi"},
		{[]string{"en-GB"}, "en"},
		{[]string{"de"}, "en"},
		{[]string{"", "vi"}, "vi"},
	}
	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
	}))

	tests := []struct {
		name   string
		target string
		header string
		cookie string
		want   string
	}{
		{"default", "/", "", "", "Log out"},
		{"accept-language", "/", "vi-VN,vi;q=0.9", "", "Đăng xuất"},
		{"cookie", "/", "", "vi", "Đăng xuất"},
		{"query wins over header", "/?lang=en", "vi", "", "Log out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
