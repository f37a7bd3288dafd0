package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthyEnv() *Environment {
	return &Environment{HasBrowser: true, IsBrowserConnected: true, HasValidPage: true}
}

func TestDetermineLevel_NoError(t *testing.T) {
	assert.Equal(t, LevelRetry, DetermineLevel("", nil))
	assert.Equal(t, LevelRetry, DetermineLevel("", healthyEnv()))
}

func TestDetermineLevel_CriticalMessagesForceRestart(t *testing.T) {
	// A critical message forces a restart even when the environment snapshot
	// looks perfectly healthy.
	messages := []string{
		"Frame Detached during evaluate",
		"Protocol error: Session closed.",
		"Target closed",
		"navigation frame was detached",
		"the browser CRASHED unexpectedly",
		"websocket disconnected from endpoint",
	}
	for _, msg := range messages {
		assert.Equal(t, LevelRestartBrowser, DetermineLevel(msg, healthyEnv()), "message %q", msg)
		assert.Equal(t, LevelRestartBrowser, DetermineLevel(msg, nil), "message %q", msg)
	}
}

func TestDetermineLevel_EnvironmentChecks(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want Level
	}{
		{
			name: "no browser",
			env:  Environment{HasBrowser: false, IsBrowserConnected: false, HasValidPage: false},
			want: LevelRestartBrowser,
		},
		{
			name: "browser handle present but disconnected",
			env:  Environment{HasBrowser: true, IsBrowserConnected: false, HasValidPage: true},
			want: LevelRestartBrowser,
		},
		{
			name: "connected browser without a valid page",
			env:  Environment{HasBrowser: true, IsBrowserConnected: true, HasValidPage: false},
			want: LevelReplacePage,
		},
		{
			name: "fully healthy",
			env:  Environment{HasBrowser: true, IsBrowserConnected: true, HasValidPage: true},
			want: LevelRetry,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// A benign, non-critical error message so evaluation falls
			// through to the environment checks.
			got := DetermineLevel("selector wait timeout", &tc.env)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetermineLevel_BenignErrorWithoutEnvironment(t *testing.T) {
	assert.Equal(t, LevelRetry, DetermineLevel("selector wait timeout", nil))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "retry", LevelRetry.String())
	assert.Equal(t, "replace-page", LevelReplacePage.String())
	assert.Equal(t, "restart-browser", LevelRestartBrowser.String())
	assert.Equal(t, "unknown", Level(0).String())
}
