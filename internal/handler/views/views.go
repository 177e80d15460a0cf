// Package views holds the templ components of the HTML pages. Run
// `templ generate` after editing a .templ file.
package views

import (
	"context"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/exampractice/internal/i18n"
	"github.com/pavelanni/exampractice/internal/model"
)

func t(ctx context.Context, id string) string {
	return appI18n.T(ctx, id)
}

// path prefixes an app path with the configured base path.
func path(ctx context.Context, p string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + p)
}

// mediaURL sanitizes a URL used in src attributes, which templ leaves as
// plain strings.
func mediaURL(u string) string {
	return string(templ.URL(u))
}

func score(ctx context.Context, res model.ExamResult) string {
	return appI18n.Td(ctx, "Score", map[string]any{"Correct": res.Correct, "Total": res.Total})
}

func questionLabel(ctx context.Context, n int) string {
	return appI18n.Td(ctx, "QuestionN", map[string]any{"N": n})
}

func markLabel(ctx context.Context, correct bool) string {
	if correct {
		return t(ctx, "Correct")
	}
	return t(ctx, "Incorrect")
}

func selectedLabel(ctx context.Context, selected string) string {
	if selected == "" {
		return t(ctx, "Unanswered")
	}
	return selected
}
