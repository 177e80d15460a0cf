package views

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/exampractice/internal/i18n"
	"github.com/pavelanni/exampractice/internal/model"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return b.String()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := model.ContextWithBasePath(context.Background(), "/practice")
	return model.ContextWithUser(ctx, &model.User{DisplayName: "Lan <b>"})
}

func TestLoginPage(t *testing.T) {
	ctx := model.ContextWithCSRFToken(testContext(t), "tok123")
	html := render(t, ctx, LoginPage("Wrong <password>"))

	for _, want := range []string{
		"<!doctype html>",
		`action="/practice/login"`,
		`name="csrf_token" value="tok123"`,
		`<p class="error">Wrong &lt;password&gt;</p>`,
		`<span class="user">Lan &lt;b&gt;</span>`,
		`href="/practice/logout"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("login page missing %q:\n%s", want, html)
		}
	}
}

func TestResultPage(t *testing.T) {
	ctx := testContext(t)
	opt := func(s string) *string { return &s }
	res := model.ExamResult{
		Submitted: true, Correct: 1, Total: 2,
		Items: []model.ResultItem{
			{
				Position: 1, SelectedAnswer: "A", CorrectAnswer: "A", Correct: true,
				Question: model.Question{Text: "Is 1 < 2?", OptionA: opt("yes"), OptionB: opt("no"), Explanation: opt("Ordering.")},
			},
			{
				Position: 2, CorrectAnswer: "B",
				Question: model.Question{Text: "Pick B", OptionA: opt("a"), OptionB: opt("b"), ImageURL: opt("javascript:alert(1)")},
			},
		},
	}
	html := render(t, ctx, ResultPage(res))

	for _, want := range []string{
		"1 of 2 correct",
		`<li class="correct">`,
		`<li class="incorrect">`,
		`<li class="selected answer"><b>A.</b> yes</li>`,
		`<li class="answer"><b>B.</b> b</li>`,
		"Is 1 &lt; 2?",
		"No answer",
		"Ordering.",
		"about:invalid#TemplFailedSanitizationURL",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("result page missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "javascript:") {
		t.Error("unsafe image URL was rendered")
	}

	pending := render(t, ctx, ResultPage(model.ExamResult{}))
	if !strings.Contains(pending, `class="notice"`) || strings.Contains(pending, `class="sheet"`) {
		t.Errorf("unsubmitted result should only show the notice:\n%s", pending)
	}
}

func TestMaterialPages(t *testing.T) {
	ctx := testContext(t)
	desc := "Heart & lungs"
	materials := []model.Material{
		{ID: "m1", Title: "Thorax", Description: &desc, Type: model.MaterialLecture, URL: "https://example.org/t.pdf"},
	}
	subjects := []model.Subject{{ID: "s1", Name: "Anatomy"}, {ID: "s2", Name: "Histology"}}
	html := render(t, ctx, MaterialsPage(materials, subjects, model.MaterialFilter{SubjectID: "s2", Query: `"x"`}))
	for _, want := range []string{
		`<option value="s2" selected>Histology</option>`,
		`<option value="s1">Anatomy</option>`,
		`value="&#34;x&#34;"`,
		`href="/practice/materials/m1"`,
		"Heart &amp; lungs",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("materials page missing %q:\n%s", want, html)
		}
	}

	empty := render(t, ctx, MaterialsPage(nil, nil, model.MaterialFilter{}))
	if !strings.Contains(empty, `class="empty"`) {
		t.Errorf("empty listing has no notice:\n%s", empty)
	}

	tests := []struct {
		kind string
		want string
	}{
		{"pdf", `<iframe class="viewer" src="https://example.org/t.pdf"`},
		{"image", `<img class="viewer" src="https://example.org/t.pdf"`},
		{"model3d", `<model-viewer class="viewer" src="https://example.org/t.pdf"`},
		{"link", `<a href="https://example.org/t.pdf" target="_blank"`},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			html := render(t, ctx, MaterialPage(materials[0], tt.kind))
			if !strings.Contains(html, tt.want) {
				t.Errorf("missing %q:\n%s", tt.want, html)
			}
			if tt.kind == "link" && (strings.Contains(html, "<iframe") || strings.Contains(html, "<img")) {
				t.Error("link material should not embed a viewer")
			}
		})
	}
}
