package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"loadsurge/internal/behavior"
)

// StatusError reports a response outside the expected status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

type HTTPOptions struct {
	MaxConns           int
	InsecureSkipVerify bool
}

// HTTP executes actions as HTTP requests. Each actor gets its own cookie
// jar, dropped again on Release.
type HTTP struct {
	transport *http.Transport
	templates *TemplateEngine

	mu       sync.RWMutex
	compiled map[*behavior.Action]*compiledTarget
	jars     map[string]http.CookieJar

	bytesIn  uint64
	bytesOut uint64
}

func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 2000
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = opts.MaxConns
	t.MaxConnsPerHost = opts.MaxConns
	t.MaxIdleConnsPerHost = opts.MaxConns
	if opts.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTP{
		transport: t,
		templates: NewTemplateEngine(),
		compiled:  make(map[*behavior.Action]*compiledTarget),
		jars:      make(map[string]http.CookieJar),
	}
}

// Validate pre-compiles the action's target templates.
func (h *HTTP) Validate(a *behavior.Action) error {
	_, err := h.compile(a)
	return err
}

func (h *HTTP) compile(a *behavior.Action) (*compiledTarget, error) {
	h.mu.RLock()
	ct, ok := h.compiled[a]
	h.mu.RUnlock()
	if ok {
		return ct, nil
	}

	ct, err := h.templates.Compile(a)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.compiled[a] = ct
	h.mu.Unlock()
	return ct, nil
}

func (h *HTTP) client(actorID string) *http.Client {
	h.mu.RLock()
	jar, ok := h.jars[actorID]
	h.mu.RUnlock()
	if !ok {
		jar, _ = cookiejar.New(nil)
		h.mu.Lock()
		if existing, found := h.jars[actorID]; found {
			jar = existing
		} else {
			h.jars[actorID] = jar
		}
		h.mu.Unlock()
	}
	// timeouts come from the action context
	return &http.Client{Transport: h.transport, Jar: jar}
}

func (h *HTTP) Execute(ctx context.Context, a *behavior.Action, actorID string) error {
	ct, err := h.compile(a)
	if err != nil {
		return err
	}

	rt, err := h.templates.render(ct, TemplateData{UserID: actorID, UUID: uuid.NewString(), Action: a.Name})
	if err != nil {
		return err
	}

	var body io.Reader
	if rt.hasBody {
		body = strings.NewReader(rt.body)
		atomic.AddUint64(&h.bytesOut, uint64(len(rt.body)))
	}
	req, err := http.NewRequestWithContext(ctx, rt.method, rt.url, body)
	if err != nil {
		return err
	}
	req.Header = rt.headers

	resp, err := h.client(actorID).Do(req)
	if err != nil {
		return err
	}
	n, _ := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	atomic.AddUint64(&h.bytesIn, uint64(n))

	if want := a.Target.ExpectStatus; want != 0 {
		if resp.StatusCode != want {
			return &StatusError{Code: resp.StatusCode}
		}
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Release drops the actor's cookie jar, the HTTP analogue of closing a
// browsing context.
func (h *HTTP) Release(actorID string) {
	h.mu.Lock()
	delete(h.jars, actorID)
	h.mu.Unlock()
}

func (h *HTTP) ActiveJars() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jars)
}

// NetworkBytes returns response bytes read and request body bytes written.
func (h *HTTP) NetworkBytes() (in, out uint64) {
	return atomic.LoadUint64(&h.bytesIn), atomic.LoadUint64(&h.bytesOut)
}

// CloseIdle releases pooled connections once a run is over.
func (h *HTTP) CloseIdle() {
	h.transport.CloseIdleConnections()
}

// Builtins is the executor set a run starts from.
type Builtins struct {
	Simulator *Simulator
	HTTP      *HTTP
}

// Register adds the built-in executors ("simulate", "http") to reg.
func Register(reg *behavior.Registry, seed uint64, opts HTTPOptions) (*Builtins, error) {
	b := &Builtins{
		Simulator: NewSimulator(seed),
		HTTP:      NewHTTP(opts),
	}
	if err := reg.Register("simulate", b.Simulator); err != nil {
		return nil, err
	}
	if err := reg.Register("http", b.HTTP); err != nil {
		return nil, err
	}
	return b, nil
}
