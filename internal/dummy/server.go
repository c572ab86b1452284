package dummy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Port int
	// Scale multiplies every simulated delay. 1 when zero.
	Scale float64
}

type endpoint struct {
	path  string
	delay func(r *rand.Rand) time.Duration
	fail  func(r *rand.Rand) int // status to return, 0 for success
}

func between(min, max time.Duration) func(*rand.Rand) time.Duration {
	return func(r *rand.Rand) time.Duration {
		return min + time.Duration(r.Int64N(int64(max-min)))
	}
}

var endpoints = []endpoint{
	{path: "/fast", delay: between(10*time.Millisecond, 50*time.Millisecond)},
	{path: "/medium", delay: between(100*time.Millisecond, 300*time.Millisecond)},
	{path: "/slow", delay: between(time.Second, 2*time.Second)},
	// usually fast, 5% of calls stall: p99 suffers, p50 does not
	{path: "/spike", delay: func(r *rand.Rand) time.Duration {
		if r.Float32() < 0.05 {
			return 2 * time.Second
		}
		return 20 * time.Millisecond
	}},
	{path: "/error", delay: func(*rand.Rand) time.Duration { return 0 }, fail: func(r *rand.Rand) int {
		switch v := r.Float32(); {
		case v < 0.2:
			return http.StatusInternalServerError
		case v < 0.4:
			return http.StatusTooManyRequests
		}
		return 0
	}},
}

// NewHandler serves the synthetic endpoints plus /status/{code} and /session,
// which sets a cookie on first visit and reports whether it came back.
func NewHandler(cfg ServerConfig) http.Handler {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}
	mux := http.NewServeMux()

	for _, ep := range endpoints {
		mux.HandleFunc(ep.path, func(w http.ResponseWriter, r *http.Request) {
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
			if d := time.Duration(float64(ep.delay(rng)) * scale); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
			if ep.fail != nil {
				if code := ep.fail(rng); code != 0 {
					http.Error(w, http.StatusText(code), code)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "%s ok", ep.path)
		})
	}

	mux.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		var code int
		if _, err := fmt.Sscanf(r.PathValue("code"), "%d", &code); err != nil || code < 100 || code > 599 {
			http.Error(w, "bad status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
	})

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			fmt.Fprintf(w, "returning %s", c.Value)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: fmt.Sprintf("%d", time.Now().UnixNano()), Path: "/"})
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		w.Header().Set("X-User", r.Header.Get("X-User"))
		buf, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		w.Write(buf)
	})

	return mux
}

// Start runs the dummy server until ctx is cancelled.
func Start(ctx context.Context, cfg ServerConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("dummy server listening",
		zap.String("addr", "http://localhost"+addr),
		zap.Strings("endpoints", []string{"/fast", "/medium", "/slow", "/spike", "/error", "/status/{code}", "/session", "/echo"}),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
