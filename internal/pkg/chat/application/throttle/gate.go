package throttle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatgate/internal/infrastructure/cache/port"
)

// Kind keys a throttle counter per event family.
type Kind string

const (
	KindMessage Kind = "msg"
	KindTyping  Kind = "typing"
)

// Window and limits for the socket protocol.
const (
	Window       = 10 * time.Second
	MessageLimit = 25
	TypingLimit  = 40
)

// Gate is a fixed-window rate limiter keyed by (user, kind), backed by the
// shared counter store. A counter-store fault fails open: chat must keep
// working when the cache is down.
type Gate struct {
	cache port.Cache
	log   *zap.Logger
}

func NewGate(cache port.Cache, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{cache: cache, log: log}
}

func key(userID int64, kind Kind) string {
	return fmt.Sprintf("chat:u:%d:throttle:%s", userID, kind)
}

// Exceeded counts one event and reports whether the user is over limit for
// this window. Callers drop or reject the frame on true; they never crash
// the connection.
func (g *Gate) Exceeded(ctx context.Context, userID int64, kind Kind, limit int) bool {
	if g == nil || g.cache == nil {
		return false
	}
	count, err := g.cache.Incr(ctx, key(userID, kind), Window)
	if err != nil {
		g.log.Warn("throttle counter unavailable, failing open", zap.Error(err))
		return false
	}
	return count > int64(limit)
}
