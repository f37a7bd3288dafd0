package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// ErrDangerousArg is returned when a caller-supplied launch flag is in the
// dangerous set and the explicit override is not enabled. This is a security
// boundary: the rejection is always surfaced, never downgraded to a warning.
var ErrDangerousArg = fmt.Errorf("dangerous browser argument rejected")

// dangerousArgPrefixes enumerates launch flags that widen the browser's
// attack surface far beyond what this tool needs. Callers must opt in
// explicitly to pass any of them.
var dangerousArgPrefixes = []string{
	"--disable-web-security",
	"--single-process",
	"--allow-running-insecure-content",
	"--disable-site-isolation-trials",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--remote-debugging-address",
}

// canonicalArgs builds the baseline flag set for the managed Chrome process:
// automation-detection suppression plus the stability flags a long-running
// headless process needs. The sandbox is disabled here deliberately; the
// process routinely runs inside containers where the kernel sandbox is
// unavailable, and the canonical set is trusted in a way caller extras are
// not.
func canonicalArgs(userAgent string) []string {
	return []string{
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
		"--disable-infobars",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--metrics-recording-only",
		"--disable-default-apps",
		"--disable-hang-monitor",
		"--disable-prompt-on-repost",
		"--disable-extensions",
		"--disable-dev-shm-usage",
		"--window-size=1920,1080",
		"--user-agent=" + userAgent,
	}
}

// argPrefix returns the flag name up to (not including) the first '='.
func argPrefix(arg string) string {
	if i := strings.IndexByte(arg, '='); i >= 0 {
		return arg[:i]
	}
	return arg
}

// GenerateArgs merges the canonical launch flags with caller-supplied extras,
// de-duplicated by flag prefix with the extras winning. Any extra whose
// prefix is in the dangerous set is rejected unless allowDangerous is set.
func GenerateArgs(userAgent string, extras []string, allowDangerous bool) ([]string, error) {
	args := canonicalArgs(userAgent)
	index := make(map[string]int, len(args))
	for i, a := range args {
		index[argPrefix(a)] = i
	}

	for _, extra := range extras {
		prefix := argPrefix(extra)
		if !allowDangerous {
			for _, dangerous := range dangerousArgPrefixes {
				if prefix == dangerous {
					return nil, fmt.Errorf("%w: %s (set browser.allow_dangerous_args to override)", ErrDangerousArg, prefix)
				}
			}
		}
		if i, ok := index[prefix]; ok {
			args[i] = extra
			continue
		}
		index[prefix] = len(args)
		args = append(args, extra)
	}

	return args, nil
}

// AllocatorOptions converts generated flag strings into chromedp exec
// allocator options, mirroring how the flags would be passed on a command
// line.
func AllocatorOptions(args []string, headless bool) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		// Chrome advertises automation through this switch unless it is
		// explicitly turned off.
		chromedp.Flag("enable-automation", false),
	}
	if headless {
		opts = append(opts, chromedp.Headless, chromedp.Flag("disable-gpu", true))
	}

	for _, arg := range args {
		name := strings.TrimPrefix(argPrefix(arg), "--")
		if i := strings.IndexByte(arg, '='); i >= 0 {
			opts = append(opts, chromedp.Flag(name, arg[i+1:]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}
