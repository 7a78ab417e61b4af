package common

import (
	"context"
	"net/http"

	"github.com/khanghh/classmeet/params"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Pinger is satisfied by storage backends that are not reached through gorm
// or redis, such as the mongo client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecks struct {
	DB     *gorm.DB
	Redis  redis.UniversalClient
	Others []Pinger
}

func (h HealthChecks) ready(ctx context.Context) bool {
	if h.DB != nil {
		sqlDB, err := h.DB.DB()
		if err != nil {
			return false
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return false
		}
	}
	if h.Redis != nil {
		if _, err := h.Redis.Ping(ctx).Result(); err != nil {
			return false
		}
	}
	for _, p := range h.Others {
		if err := p.Ping(ctx); err != nil {
			return false
		}
	}
	return true
}

func NewHealthCheckHandler(checks HealthChecks) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !checks.ready(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func StartHealthCheckServer(ctx context.Context, done chan struct{}, checks HealthChecks) {
	server := &http.Server{
		Addr:    params.HealthCheckServerAddr,
		Handler: NewHealthCheckHandler(checks),
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		server.Shutdown(context.Background())
		close(done)
	case <-serverErr:
		close(done)
	}
}
