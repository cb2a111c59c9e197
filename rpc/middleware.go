package rpc

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter keeps one token bucket per remote address. Buckets for idle
// clients are dropped after an hour to bound memory.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst == 0 {
			burst = 1
		}
	}
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *clientLimiter) allow(remote string) bool {
	if l == nil {
		return true
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.clients[host]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[host] = bucket
	}
	bucket.lastSeen = now
	if len(l.clients) > 1_000 {
		for addr, stale := range l.clients {
			if now.Sub(stale.lastSeen) > time.Hour {
				delete(l.clients, addr)
			}
		}
	}
	return bucket.limiter.Allow()
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		s.metrics.ObserveRequest(route, strconv.Itoa(recorder.status), elapsed)
		s.logger.Info("http request",
			"method", r.Method,
			"route", route,
			"status", recorder.status,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	})
}
