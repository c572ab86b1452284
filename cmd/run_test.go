package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadsurge/internal/alert"
	"loadsurge/internal/config"
	"loadsurge/internal/scenario"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders([]string{"Content-Type: application/json", "X-Trace:abc:def", "broken"})
	assert.Equal(t, map[string]string{"Content-Type": "application/json", "X-Trace": "abc:def"}, got)
}

func TestBuildRunFromFlags(t *testing.T) {
	defer func(u string, n int, d time.Duration) { url, users, duration = u, n, d }(url, users, duration)

	url, users, duration = "", 5, time.Second
	_, _, err := buildRun(nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	url = "http://localhost:8080/fast"
	f, target, err := buildRun(nil)
	require.NoError(t, err)
	assert.Equal(t, url, target)
	assert.Equal(t, 5, f.Load.Users)
	assert.Equal(t, scenario.PatternConstant, f.Scenario.Pattern)

	action := f.Load.Behavior.Profiles["default"].Actions[0]
	assert.Equal(t, "http", action.Executor)
	assert.Equal(t, url, action.Target.Address)

	plan, err := f.Scenario.Plan(f.Load)
	require.NoError(t, err)
	assert.Len(t, plan.Stages, 1)
}

func TestFlagThresholdsOnlyWhenGiven(t *testing.T) {
	f := runCmd.Flags()
	defer func() {
		for _, name := range []string{"max-latency", "max-error-rate", "min-throughput"} {
			f.Lookup(name).Changed = false
		}
		maxLatency, maxErrorRate, minThroughput = 0, 0, 0
	}()

	assert.Equal(t, alert.Thresholds{}, flagThresholds())

	require.NoError(t, f.Set("max-error-rate", "0"))
	th := flagThresholds()
	require.NotNil(t, th.ErrorRate)
	assert.Zero(t, *th.ErrorRate)
	assert.Nil(t, th.ResponseTime)
	assert.Nil(t, th.Throughput)
}
