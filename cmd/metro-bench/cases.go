// README: Benchmark cases for the trip API; includes DB, Redis, lifecycle, race and performance checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"metro/internal/infra"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	signer *infra.JWTVerifier
	runID  string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

var benchRoutes = []struct {
	id, origin, destination string
}{
	{"benchr1", "Sokol", "Aeroport"},
	{"benchr2", "Aeroport", "Dinamo"},
	{"benchr3", "Dinamo", "Belorusskaya"},
	{"benchr4", "Belorusskaya", "Mayakovskaya"},
}

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: fmt.Sprintf("%d", time.Now().UnixNano()),
	}
	if cfg.JWTSecret != "" {
		r.signer = infra.NewJWTVerifier(cfg.JWTSecret)
	}
	return r
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		if r.cfg.Run != nil && !r.cfg.Run.MatchString(tc.Name) {
			continue
		}
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

// bearer mints a token for a bench user; uid is suffixed with the run id so
// repeated runs start from a clean draft.
func (r *Runner) bearer(uid, role string) (string, error) {
	if r.signer == nil {
		return "", fmt.Errorf("jwt secret not configured")
	}
	tok, err := r.signer.Sign(uid+r.runID, uid, role, time.Hour)
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Seed: bench routes",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				for _, br := range benchRoutes {
					_, err := r.db.Exec(ctx, `
                        INSERT INTO routes (id, origin, destination, price, is_active)
                        VALUES ($1, $2, $3, 5500, TRUE)
                        ON CONFLICT (id) DO NOTHING`,
						br.id, br.origin, br.destination,
					)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("routes=%d", len(benchRoutes))}
			},
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodGet, base+"/health", nil, "")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},

		httpCase("Catalog: search routes", http.MethodGet, base+"/api/routes?origin=sok", nil, "", "", []int{200}),
		httpCase("Catalog: unknown route -> 404", http.MethodGet, base+"/api/routes/doesnotexist", nil, "", "", []int{404}),
		httpCase("Draft: no token -> 401", http.MethodPost, base+"/api/trips/draft", nil, "", "", []int{401}),
		httpCase("Moderate: plain user -> 403", http.MethodPost, base+"/api/trips/abc/moderate",
			map[string]any{"action": "finish"}, "benchuser", "user", []int{403}),
		httpCase("Moderate: unknown action -> 400", http.MethodPost, base+"/api/trips/abc/moderate",
			map[string]any{"action": "approve"}, "benchmod", "moderator", []int{400}),

		{
			Name: "Concurrency: draft get-or-create yields one draft",
			Run:  func(ctx context.Context, r *Runner) Result { return concurrentDraft(ctx, r, base) },
		},
		{
			Name: "Lifecycle: sequence, form and race moderation",
			Run:  func(ctx context.Context, r *Runner) Result { return lifecycle(ctx, r, base) },
		},
		{
			Name: "Perf: route search throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, base+"/api/routes")
			},
		},
	}
}

// call sends one request and decodes a JSON body into out when out is non-nil.
func (r *Runner) call(ctx context.Context, method, url string, body any, auth string) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, time.Since(start), err
}

func httpCase(name, method, url string, body any, uid, role string, okStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			auth := ""
			if uid != "" {
				var err error
				if auth, err = r.bearer(uid, role); err != nil {
					return Result{Status: "SKIP", Note: err.Error()}
				}
			}
			status, _, latency, err := r.call(ctx, method, url, body, auth)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if contains(okStatuses, status) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

type tripBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Routes []struct {
		RouteID string `json:"route_id"`
		Order   int    `json:"order"`
	} `json:"routes"`
	DurationTotal *int `json:"duration_total"`
}

func concurrentDraft(ctx context.Context, r *Runner, base string) Result {
	auth, err := r.bearer("benchdraft", "user")
	if err != nil {
		return Result{Status: "SKIP", Note: err.Error()}
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]int{}
		errs int
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, data, _, err := r.call(ctx, http.MethodPost, base+"/api/trips/draft", nil, auth)
			var t tripBody
			if err == nil && status == http.StatusOK {
				err = json.Unmarshal(data, &t)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil || status != http.StatusOK {
				errs++
				return
			}
			ids[t.ID]++
		}()
	}
	close(start)
	wg.Wait()

	if errs > 0 || len(ids) != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("drafts=%d errors=%d", len(ids), errs)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("callers=%d", r.cfg.Concurrency)}
}

func lifecycle(ctx context.Context, r *Runner, base string) Result {
	user, err := r.bearer("benchflow", "user")
	if err != nil {
		return Result{Status: "SKIP", Note: err.Error()}
	}
	mod, err := r.bearer("benchmod", "moderator")
	if err != nil {
		return Result{Status: "SKIP", Note: err.Error()}
	}

	durations := []int{120, 45, 200, 30}
	for i, br := range benchRoutes {
		status, data, _, err := r.call(ctx, http.MethodPost, base+"/api/routes/"+br.id+"/trip",
			map[string]any{"duration": durations[i]}, user)
		if err != nil || status != http.StatusCreated {
			return Result{Status: "FAIL", Note: fmt.Sprintf("add %s: status=%d err=%v body=%s", br.id, status, err, data)}
		}
	}

	status, data, _, err := r.call(ctx, http.MethodPost, base+"/api/trips/draft", nil, user)
	if err != nil || status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("draft: status=%d err=%v", status, err)}
	}
	var draft tripBody
	if err := json.Unmarshal(data, &draft); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	status, data, _, err = r.call(ctx, http.MethodGet, base+"/api/trips/"+draft.ID, nil, user)
	if err != nil || status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("detail: status=%d err=%v", status, err)}
	}
	var detail tripBody
	if err := json.Unmarshal(data, &detail); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	// shortest first: benchr4(30), benchr2(45), benchr1(120), benchr3(200)
	want := []string{"benchr4", "benchr2", "benchr1", "benchr3"}
	for i, e := range detail.Routes {
		if i >= len(want) || e.RouteID != want[i] || e.Order != i+1 {
			return Result{Status: "FAIL", Note: fmt.Sprintf("unexpected sequence: %s", data)}
		}
	}

	status, _, _, _ = r.call(ctx, http.MethodPut, base+"/api/trips/"+draft.ID, map[string]any{"owner": "bench"}, user)
	if status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("set owner: status=%d", status)}
	}
	status, _, _, _ = r.call(ctx, http.MethodPost, base+"/api/trips/"+draft.ID+"/form", nil, user)
	if status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("form: status=%d", status)}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		action := "finish"
		if i%2 == 1 {
			action = "dismiss"
		}
		wg.Add(1)
		go func(action string) {
			defer wg.Done()
			<-start
			status, _, _, err := r.call(ctx, http.MethodPost, base+"/api/trips/"+draft.ID+"/moderate",
				map[string]any{"action": action}, mod)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
			case status == http.StatusOK:
				winners++
			case status == http.StatusConflict:
				conflicts++
			}
		}(action)
	}
	close(start)
	wg.Wait()

	if winners != 1 || winners+conflicts != r.cfg.Concurrency {
		return Result{Status: "FAIL", Note: fmt.Sprintf("winners=%d conflicts=%d", winners, conflicts)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("winners=%d conflicts=%d", winners, conflicts)}
}

func perfLoad(ctx context.Context, r *Runner, method, url string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, method, url, nil, "")
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
