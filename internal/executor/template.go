package executor

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"

	"loadsurge/internal/behavior"
)

// TemplateData is what a target template sees.
type TemplateData struct {
	UserID string
	UUID   string
	Action string
}

// shorthand variables usable without the leading dot, e.g. {{ userID }}
var shorthand = regexp.MustCompile(`\{\{\s*(userID|actorID|uuid|requestID|action)\s*\}\}`)

var shorthandField = map[string]string{
	"userID":    "{{.UserID}}",
	"actorID":   "{{.UserID}}",
	"uuid":      "{{.UUID}}",
	"requestID": "{{.UUID}}",
	"action":    "{{.Action}}",
}

func expandShorthand(text string) string {
	return shorthand.ReplaceAllStringFunc(text, func(m string) string {
		return shorthandField[shorthand.FindStringSubmatch(m)[1]]
	})
}

// TemplateEngine compiles action targets into renderable requests. Data
// files read by randomLine are loaded once per path.
type TemplateEngine struct {
	files   sync.Map // path -> func() ([]string, error)
	funcMap template.FuncMap
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{}
	e.funcMap = template.FuncMap{
		"randomInt":    randomInt,
		"randomChoice": randomChoice,
		"randomUUID":   uuid.NewString,
		"uuid":         uuid.NewString,
		"randomLine":   e.randomLine,
		"env":          os.Getenv,
	}
	return e
}

func (e *TemplateEngine) Parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(e.funcMap).Option("missingkey=error").Parse(expandShorthand(text))
}

// Execute renders t into a string.
func (e *TemplateEngine) Execute(t *template.Template, data TemplateData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// compiledTarget is an action's target with every templated part parsed.
type compiledTarget struct {
	method  string
	address *template.Template
	body    *template.Template
	headers map[string]*template.Template
}

// renderedTarget is one concrete request for one actor.
type renderedTarget struct {
	method  string
	url     string
	body    string
	hasBody bool
	headers http.Header
}

// Compile parses the address, body and headers of a's target.
func (e *TemplateEngine) Compile(a *behavior.Action) (*compiledTarget, error) {
	if strings.TrimSpace(a.Target.Address) == "" {
		return nil, fmt.Errorf("action %q: http target address is required", a.Name)
	}
	ct := &compiledTarget{
		method:  strings.ToUpper(a.Target.Method),
		headers: make(map[string]*template.Template, len(a.Target.Headers)),
	}
	if ct.method == "" {
		ct.method = http.MethodGet
	}

	var err error
	if ct.address, err = e.Parse(a.Name+".address", a.Target.Address); err != nil {
		return nil, fmt.Errorf("parse target address: %w", err)
	}
	if a.Target.Body != "" {
		if ct.body, err = e.Parse(a.Name+".body", a.Target.Body); err != nil {
			return nil, fmt.Errorf("parse target body: %w", err)
		}
	}
	for k, v := range a.Target.Headers {
		if ct.headers[k], err = e.Parse(a.Name+".header."+k, v); err != nil {
			return nil, fmt.Errorf("parse header %q: %w", k, err)
		}
	}
	return ct, nil
}

func (e *TemplateEngine) render(ct *compiledTarget, data TemplateData) (renderedTarget, error) {
	rt := renderedTarget{method: ct.method, headers: make(http.Header, len(ct.headers))}

	var err error
	if rt.url, err = e.Execute(ct.address, data); err != nil {
		return rt, fmt.Errorf("render address: %w", err)
	}
	if ct.body != nil {
		if rt.body, err = e.Execute(ct.body, data); err != nil {
			return rt, fmt.Errorf("render body: %w", err)
		}
		rt.hasBody = true
	}
	for k, t := range ct.headers {
		v, err := e.Execute(t, data)
		if err != nil {
			return rt, fmt.Errorf("render header %q: %w", k, err)
		}
		rt.headers.Set(k, v)
	}
	if rt.hasBody && rt.headers.Get("Content-Type") == "" {
		rt.headers.Set("Content-Type", "application/json")
	}
	return rt, nil
}

// randomInt draws from [lo, hi).
func randomInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo)
}

func randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.IntN(len(choices))]
}

func (e *TemplateEngine) randomLine(path string) (string, error) {
	load, _ := e.files.LoadOrStore(path, sync.OnceValues(func() ([]string, error) {
		return readLines(path)
	}))
	lines, err := load.(func() ([]string, error))()
	if err != nil {
		return "", err
	}
	return randomChoice(lines...), nil
}

// readLines returns the non-blank lines of path, trimmed.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read data file %q: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read data file %q: %w", path, err)
	}
	return lines, nil
}
