package npoint

import (
	"context"
	"sync"
	"time"

	"github.com/muir/nhttp/nvelope"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// ThrottleKey picks the bucket a request counts against.  It sees
// the extracted handler parameters.
type ThrottleKey func(params map[string]interface{}) string

// ThrottleOpt configures Throttle
type ThrottleOpt func(*throttle)

// ThrottleBy counts requests per key instead of per endpoint
func ThrottleBy(key ThrottleKey) ThrottleOpt {
	return func(t *throttle) { t.key = key }
}

// ThrottleKeys bounds the number of buckets kept.  The least
// recently used bucket is dropped first.  The default is 4096.
func ThrottleKeys(n int) ThrottleOpt {
	return func(t *throttle) { t.size = n }
}

type window struct {
	start time.Time
	count int
}

type throttle struct {
	limit  int
	period time.Duration
	key    ThrottleKey
	size   int
	now    func() time.Time
	lock   sync.Mutex
	hits   *lru.Cache[string, window]
}

// ErrThrottled is returned, with status 429, for requests over the
// limit
var ErrThrottled = errors.New("rate limit exceeded")

// Throttle is a Plugin that allows limit calls per fixed window of
// period.  Requests over the limit fail with 429 before the handler
// runs.
func Throttle(limit int, period time.Duration, opts ...ThrottleOpt) Plugin {
	t := &throttle{
		limit:  limit,
		period: period,
		size:   4096,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.size <= 0 {
		t.size = 4096
	}
	// lru.New only fails for a non-positive size
	t.hits, _ = lru.New[string, window](t.size)
	return func(info EndpointInfo) Call {
		return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			key := info.Path
			if t.key != nil {
				key += " " + t.key(params)
			}
			if wait, ok := t.allow(key); !ok {
				return nil, nvelope.ReturnCode(
					errors.Wrapf(ErrThrottled, "%s, retry in %s", info.Path, wait.Round(time.Second)), 429)
			}
			return info.Call(ctx, params)
		}
	}
}

func (t *throttle) allow(key string) (time.Duration, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	now := t.now()
	w, ok := t.hits.Get(key)
	if !ok || now.Sub(w.start) >= t.period {
		w = window{start: now}
	}
	if w.count >= t.limit {
		return w.start.Add(t.period).Sub(now), false
	}
	w.count++
	t.hits.Add(key, w)
	return 0, true
}

// Timeout is a Plugin that gives the handler a context that expires
// after d.  Handlers still running at the deadline get 504.
func Timeout(d time.Duration) Plugin {
	return func(info EndpointInfo) Call {
		return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			for name, v := range params {
				if _, ok := v.(context.Context); ok {
					params[name] = ctx
				}
			}
			v, err := info.Call(ctx, params)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, nvelope.ReturnCode(errors.Wrap(ctx.Err(), info.Path), 504)
			}
			return v, err
		}
	}
}
