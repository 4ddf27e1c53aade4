package npoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nsig"

	"github.com/stretchr/testify/assert"
)

func TestThrottle(t *testing.T) {
	var calls int
	h := npoint.CreateEndpoint("/quota", func(user string) int {
		calls++
		return calls
	}, nsig.Arg("user", nparam.Query()),
		npoint.WithPlugins(npoint.Throttle(2, time.Minute, npoint.ThrottleBy(func(params map[string]interface{}) string {
			return params["user"].(string)
		}))))

	assert.Equal(t, 200, do(t, h, "GET", "/quota?user=ann", "").code)
	assert.Equal(t, 200, do(t, h, "GET", "/quota?user=ann", "").code)
	res := do(t, h, "GET", "/quota?user=ann", "")
	assert.Equal(t, 429, res.code)
	assert.Contains(t, res.body, "rate limit exceeded")
	assert.Equal(t, 2, calls, "handler not called when throttled")

	assert.Equal(t, 200, do(t, h, "GET", "/quota?user=ben", "").code, "separate bucket")
}

func TestThrottleWindow(t *testing.T) {
	h := npoint.CreateEndpoint("/burst", func() string { return "ok" },
		npoint.WithPlugins(npoint.Throttle(1, 50*time.Millisecond)))
	assert.Equal(t, 200, do(t, h, "GET", "/burst", "").code)
	assert.Equal(t, 429, do(t, h, "GET", "/burst", "").code)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 200, do(t, h, "GET", "/burst", "").code, "new window")
}

func TestTimeout(t *testing.T) {
	h := npoint.CreateEndpoint("/slow", func(ctx context.Context, wait bool) (string, error) {
		if !wait {
			return "fast", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	}, nsig.Arg("ctx"), nsig.Arg("wait", nparam.Query()),
		npoint.WithPlugins(npoint.Timeout(20*time.Millisecond)))

	res := do(t, h, "GET", "/slow?wait=false", "")
	assert.Equal(t, 200, res.code)
	assert.Equal(t, `"fast"`, res.body)
	assert.Equal(t, 504, do(t, h, "GET", "/slow?wait=true", "").code)
}
