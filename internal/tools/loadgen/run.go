package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        uint64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status429     int64
	Status5xx     int64
}

// request is one synthetic call. Bodies are built per job so the email
// varies when the profile asks for it.
type request struct {
	method string
	path   string
	body   func(r *rand.Rand) string
}

// tally counts outcomes across workers. 429 is also a 4xx.
type tally struct {
	total, failures, s2xx, s4xx, s429, s5xx atomic.Int64
}

func (t *tally) observe(status int) {
	t.total.Add(1)
	switch {
	case status >= 500:
		t.s5xx.Add(1)
	case status >= 400:
		t.s4xx.Add(1)
		if status == http.StatusTooManyRequests {
			t.s429.Add(1)
		}
	case status >= 200 && status < 300:
		t.s2xx.Add(1)
	}
}

func (t *tally) result() Result {
	return Result{
		TotalRequests: t.total.Load(),
		Failures:      t.failures.Load(),
		Status2xx:     t.s2xx.Load(),
		Status4xx:     t.s4xx.Load(),
		Status429:     t.s429.Load(),
		Status5xx:     t.s5xx.Load(),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return cfg
}

// Run paces requests from the profile at cfg.RPS across cfg.Concurrency
// workers until cfg.Duration elapses or ctx is cancelled. Transport errors
// count as failures, never as a returned error.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = withDefaults(cfg)
	mix := requestsForProfile(cfg.Profile)
	if len(mix) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var counts tally
	client := &http.Client{Timeout: 5 * time.Second}
	jobs := make(chan request, cfg.Concurrency*2)

	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(w)))
		g.Go(func() error {
			for job := range jobs {
				status, err := send(gctx, client, cfg.BaseURL, job, rng)
				if err != nil {
					counts.failures.Add(1)
					continue
				}
				counts.observe(status)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for n := 0; ; n++ {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			select {
			case jobs <- mix[n%len(mix)]:
			case <-gctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return counts.result(), err
	}
	return counts.result(), nil
}

func send(ctx context.Context, client *http.Client, baseURL string, job request, rng *rand.Rand) (int, error) {
	var body io.Reader = http.NoBody
	if job.body != nil {
		body = strings.NewReader(job.body(rng))
	}
	req, err := http.NewRequestWithContext(ctx, job.method, baseURL+job.path, body)
	if err != nil {
		return 0, err
	}
	if job.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func randomEmail(r *rand.Rand) string {
	return fmt.Sprintf("loadgen+%d@labrental.test", r.IntN(1_000_000))
}

func requestsForProfile(profile string) []request {
	badLogin := request{method: http.MethodPost, path: "/api/v1/auth/login", body: func(r *rand.Rand) string {
		return fmt.Sprintf(`{"email":%q,"password":"Wrong1234pass"}`, randomEmail(r))
	}}
	refreshNoToken := request{method: http.MethodPost, path: "/api/v1/auth/refresh"}
	forgot := request{method: http.MethodPost, path: "/api/v1/auth/password/forgot", body: func(r *rand.Rand) string {
		return fmt.Sprintf(`{"email":%q}`, randomEmail(r))
	}}
	emailOTP := request{method: http.MethodPost, path: "/api/v1/auth/email/otp", body: func(r *rand.Rand) string {
		return fmt.Sprintf(`{"email":%q}`, randomEmail(r))
	}}
	live := request{method: http.MethodGet, path: "/health/live"}
	meAnon := request{method: http.MethodGet, path: "/api/v1/me"}
	badJSON := request{method: http.MethodPost, path: "/api/v1/auth/login", body: func(*rand.Rand) string { return `{"email":` }}

	switch strings.ToLower(profile) {
	case "", "mixed":
		return []request{live, badLogin, refreshNoToken, forgot, meAnon}
	case "auth":
		return []request{badLogin, refreshNoToken}
	case "otp":
		return []request{forgot, emailOTP}
	case "error-heavy":
		return []request{badJSON, meAnon, refreshNoToken}
	default:
		return nil
	}
}
