package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// MaxMessageRunes caps a single chat message forwarded to the provider.
const MaxMessageRunes = 4000

var studentMessageRegex = regexp.MustCompile(`(?i)</?\s*(student-message|system-instructions)\b[^>]*>`)

// Variant selects the language of the tutor instruction.
type Variant string

const (
	// VariantEnglish is the English tutor instruction.
	VariantEnglish Variant = "en"
	// VariantVietnamese is the Vietnamese tutor instruction.
	VariantVietnamese Variant = "vi"
)

var validVariants = map[Variant]bool{
	VariantEnglish:    true,
	VariantVietnamese: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// TutorData holds template data for the tutor instruction.
type TutorData struct {
	Subject string
}

// Load parses the embedded templates once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		for v := range validVariants {
			file := "templates/tutor_" + string(v) + ".txt"
			content, err := fs.ReadFile(templatesFS, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildTutorPrompt renders the system instruction for variant.
func BuildTutorPrompt(variant Variant, data TutorData) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// WrapStudentMessage strips tags that could close or forge the student
// message envelope, truncates very long input and wraps the result.
func WrapStudentMessage(text string) string {
	return "<student-message>\n" + Sanitize(text) + "\n</student-message>"
}

// Sanitize removes envelope tags, trims whitespace and truncates text to
// MaxMessageRunes.
func Sanitize(text string) string {
	text = studentMessageRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		runes := []rune(text)
		text = string(runes[:MaxMessageRunes]) + "\n\n[Message truncated due to length]"
	}
	return text
}
