// Package quota gates free usage with a per-client call counter held in the
// shared store. Premium callers bypass the counter entirely.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bizapi/internal/apperr"
	"bizapi/internal/metrics"
	"bizapi/internal/store"
)

const keyPrefix = "usage:"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Premium bool
	// Count is the caller's usage after this request; zero for premium
	// callers and when the store was unavailable.
	Count int64
	Limit int
}

// Remaining reports how many free calls are left after this one.
func (d Decision) Remaining() int64 {
	if d.Premium {
		return -1
	}
	if r := int64(d.Limit) - d.Count; r > 0 {
		return r
	}
	return 0
}

type Limiter struct {
	store     store.Store
	limit     int
	freePlans map[string]struct{}
	logger    *slog.Logger
}

// New returns a Limiter admitting limit free calls per identity. Credential
// values listed in freePlans (compared case-insensitively) count as absent.
func New(s store.Store, limit int, freePlans []string, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	plans := make(map[string]struct{}, len(freePlans))
	for _, p := range freePlans {
		plans[strings.ToUpper(strings.TrimSpace(p))] = struct{}{}
	}
	return &Limiter{store: s, limit: limit, freePlans: plans, logger: logger}
}

func (l *Limiter) Limit() int { return l.limit }

// IsPremium reports whether a credential header value grants unmetered use.
func (l *Limiter) IsPremium(credential string) bool {
	v := strings.ToUpper(strings.TrimSpace(credential))
	if v == "" {
		return false
	}
	_, free := l.freePlans[v]
	return !free
}

// Admit counts the call for identity and decides whether it may proceed.
// The counter grows on every non-premium call, admitted or not, and is never
// decremented. A store failure admits the call.
func (l *Limiter) Admit(ctx context.Context, identity string, premium bool) (Decision, error) {
	if premium {
		return Decision{Allowed: true, Premium: true, Limit: l.limit}, nil
	}

	n, err := l.store.Incr(ctx, keyPrefix+identity)
	if err != nil {
		l.logger.Error("usage counter unavailable, admitting request", "identity", identity, "error", err)
		return Decision{Allowed: true, Limit: l.limit}, nil
	}

	d := Decision{Allowed: n <= int64(l.limit), Count: n, Limit: l.limit}
	if !d.Allowed {
		metrics.RecordQuotaRejection()
		return d, apperr.QuotaExceeded(fmt.Sprintf(
			"free tier limit of %d calls reached; subscribe to a premium plan to continue", l.limit))
	}
	return d, nil
}

// ClientIdentity resolves the caller: the first X-Forwarded-For entry when
// present, otherwise the connection address.
func ClientIdentity(forwardedFor, remoteIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return remoteIP
}
