package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"glaz/internal/accounttypes"
	"glaz/internal/backend"
	"glaz/internal/cache"
	"glaz/internal/currency"
	"glaz/internal/middleware/ratelimit"
	"glaz/internal/middleware/security"
	"glaz/internal/middleware/trace"
	"glaz/internal/services"
)

const apiVersion = "2.3.0"

// Deps carries everything the server needs. BackupManager is nil when the
// active backend has no file-level backups.
type Deps struct {
	Accounts      *services.AccountService
	Registry      *accounttypes.Registry
	Rates         *currency.Service
	BackupManager backend.BackupManager
	Retention     int
	Port          string
}

// Server is the HTTP front for the account API.
type Server struct {
	http.Server

	accounts  *services.AccountService
	registry  *accounttypes.Registry
	rates     *currency.Service
	backupMgr backend.BackupManager
	retention int
	port      string

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	// Total-balance responses per currency. Mutations bump the generation
	// so stale totals stop being served immediately; superseded entries
	// age out by TTL.
	totalsCache *cache.LRUCache[totalResponse]
	totalsGen   int64

	startTime    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		accounts:    deps.Accounts,
		registry:    deps.Registry,
		rates:       deps.Rates,
		backupMgr:   deps.BackupManager,
		retention:   deps.Retention,
		port:        deps.Port,
		limiter:     ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:      trace.NewMiddleware(extractClientIP),
		totalsCache: cache.NewLRUCache[totalResponse](16, time.Minute),
		startTime:   time.Now(),
	}

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("GET /api/accounts/total", s.handleTotalBalance)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)

	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/currencies/convert", s.handleConvert)

	mux.HandleFunc("GET /api/storage/stats", s.handleStorageStats)
	mux.HandleFunc("POST /api/storage/backup", s.handleCreateBackup)
	mux.HandleFunc("GET /api/storage/backups", s.handleListBackups)
	mux.HandleFunc("POST /api/storage/restore", s.handleRestoreBody)
	mux.HandleFunc("POST /api/storage/restore/{filename}", s.handleRestorePath)

	mux.HandleFunc("GET /api/account-types", s.handleListTypes)
	mux.HandleFunc("GET /api/account-types/{id}", s.handleGetType)
	mux.HandleFunc("POST /api/account-types", s.handleCreateType)
	mux.HandleFunc("PUT /api/account-types/{id}", s.handleUpdateType)
	mux.HandleFunc("DELETE /api/account-types/{id}", s.handleDeleteType)

	mux.HandleFunc("GET /health", s.handleHealth)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(extractClientIP, rateLimitExceeded)

	var handler http.Handler = mux
	handler = limitMutations(limited, handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// limitMutations applies the rate limiter to mutating methods only; reads
// stay unthrottled.
func limitMutations(limited func(http.Handler) http.Handler, next http.Handler) http.Handler {
	guarded := limited(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			guarded.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// RegisterCaches adds the server's caches to a cleanup manager.
func (s *Server) RegisterCaches(m *cache.Manager) {
	m.Register(s.totalsCache)
}

// invalidateTotals makes all cached total-balance responses unreachable.
func (s *Server) invalidateTotals() {
	atomic.AddInt64(&s.totalsGen, 1)
}

func (s *Server) totalsKey(currency string) string {
	gen := atomic.LoadInt64(&s.totalsGen)
	return currency + ":" + strconv.FormatInt(gen, 10)
}

// Shutdown stops the HTTP listener and the middleware cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
