package recovery

import "strings"

// Level ranks the structural repair required after a failed operation.
// Severity is monotonic: a dead browser process cannot be repaired by a
// cheaper action.
type Level int

const (
	// LevelRetry leaves the browser and page untouched; the caller simply
	// retries after a backoff.
	LevelRetry Level = iota + 1
	// LevelReplacePage discards the page handle and acquires a fresh page
	// from the existing browser process.
	LevelReplacePage
	// LevelRestartBrowser discards both handles, forcing a full relaunch on
	// the next initialize.
	LevelRestartBrowser
)

func (l Level) String() string {
	switch l {
	case LevelRetry:
		return "retry"
	case LevelReplacePage:
		return "replace-page"
	case LevelRestartBrowser:
		return "restart-browser"
	default:
		return "unknown"
	}
}

// Environment is a read-only snapshot of supervisor state at decision time.
type Environment struct {
	HasBrowser         bool
	IsBrowserConnected bool
	HasValidPage       bool
	OperationCount     int
}

// Messages that always imply the browser process (or its transport) is gone,
// regardless of how healthy the environment snapshot looks. The snapshot can
// lag reality; the message is from the failure itself.
var criticalMarkers = []string{
	"frame detached",
	"session closed",
	"target closed",
	"detached",
	"crashed",
	"disconnected",
}

// DetermineLevel maps a raw failure message plus an environment snapshot to a
// repair level. The checks run in a fixed order and the first match wins:
//
//  1. no error at all -> LevelRetry
//  2. critical message content -> LevelRestartBrowser, evaluated before and
//     independent of the environment checks
//  3. missing or disconnected browser -> LevelRestartBrowser
//  4. missing page -> LevelReplacePage
//  5. otherwise -> LevelRetry
//
// Step 2's precedence over steps 3-4 is load-bearing: merging the message and
// environment checks would change observable recovery behavior.
func DetermineLevel(message string, env *Environment) Level {
	if message == "" {
		return LevelRetry
	}

	if containsAny(strings.ToLower(message), criticalMarkers) {
		return LevelRestartBrowser
	}

	if env != nil {
		if !env.HasBrowser || !env.IsBrowserConnected {
			return LevelRestartBrowser
		}
		if !env.HasValidPage {
			return LevelReplacePage
		}
	}

	return LevelRetry
}
