package views

import (
	"commitment-wall/models"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// Counters are the two numbers shown above the wall.
type Counters struct {
	Count       int
	TotalImpact int
}

// FormValues refill the submission form after a rejected submit.
type FormValues struct {
	Name        string
	Company     string
	Email       string
	Message     string
	Category    string
	InputMethod string
}

// WallPage is the data behind the "wall" view.
type WallPage struct {
	Pledges    []models.Pledge
	Counters   Counters
	Categories []models.Category
	Form       FormValues

	// Notice is shown above the form; NoticeError picks its styling.
	Notice      string
	NoticeError bool

	// Set right after a successful submission.
	NewPasscode string
	NewName     string
}

// Engine renders the embedded templates; it satisfies fiber.Views.
type Engine struct {
	once sync.Once
	tmpl *template.Template
	err  error
}

// New returns an Engine. Templates are parsed on first use.
func New() *Engine {
	return &Engine{}
}

var funcs = template.FuncMap{
	"impact": func(p models.Pledge) string {
		if p.AIImpactScore == "" {
			return models.DefaultImpactScore
		}
		return p.AIImpactScore
	},
	"sentiment": func(p models.Pledge) string {
		if p.AISentiment == "" {
			return models.SentimentPositive
		}
		return p.AISentiment
	},
	// html/template refuses data: URLs unless told they are safe.
	"videoSrc": func(p models.Pledge) template.URL {
		if p.InputMethod != models.InputMethodVideo || !strings.HasPrefix(p.VideoData, "data:video/") {
			return ""
		}
		return template.URL(p.VideoData)
	},
	"selected": func(current string, option models.Category) bool {
		return current == string(option)
	},
}

// Load parses the templates.
func (e *Engine) Load() error {
	e.once.Do(func() {
		e.tmpl, e.err = template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	})
	return e.err
}

// Render executes template name (without the .html suffix) into w.
func (e *Engine) Render(w io.Writer, name string, binding interface{}, _ ...string) error {
	if err := e.Load(); err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	return e.tmpl.ExecuteTemplate(w, name+".html", binding)
}

var _ fiber.Views = (*Engine)(nil)
