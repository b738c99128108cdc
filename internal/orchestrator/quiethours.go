package orchestrator

import (
	"math/rand"
	"time"

	"github.com/ignite/transact-messaging/internal/domain"
)

// inQuietHours reports whether at is inside the campaign's quiet-hour
// window, resolved recipient timezone attribute -> campaign quiet-hour
// timezone -> UTC, per §4.7 stage 2. An empty tz is passed straight to
// time.LoadLocation, which itself resolves "" to UTC, so the chain actually
// reaches UTC instead of failing open before ever trying. Malformed window
// configuration or unresolvable timezone data still fails open (not quiet)
// rather than silently blocking all dispatch.
func inQuietHours(qh domain.QuietHours, recipientTZ string, at time.Time) bool {
	tz := qh.Timezone
	if recipientTZ != "" {
		tz = recipientTZ
	}
	if qh.Start == "" || qh.End == "" {
		return false
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}
	local := at.In(loc)

	startMin, ok := parseHHMM(qh.Start)
	if !ok {
		return false
	}
	endMin, ok := parseHHMM(qh.End)
	if !ok {
		return false
	}
	nowMin := local.Hour()*60 + local.Minute()

	if endMin < startMin {
		// Overnight window, e.g. 22:00-06:00.
		return nowMin >= startMin || nowMin < endMin
	}
	return nowMin >= startMin && nowMin < endMin
}

func parseHHMM(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// nextQuietHoursEnd computes the next instant, after `at`, when the quiet
// window ends — the instant dispatch should be rescheduled to.
func nextQuietHoursEnd(qh domain.QuietHours, recipientTZ string, at time.Time) time.Time {
	tz := qh.Timezone
	if recipientTZ != "" {
		tz = recipientTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	endMin, ok := parseHHMM(qh.End)
	if !ok {
		return at.Add(time.Hour)
	}
	end := time.Date(local.Year(), local.Month(), local.Day(), endMin/60, endMin%60, 0, 0, loc)
	if !end.After(local) {
		end = end.Add(24 * time.Hour)
	}
	return end
}

// backoff implements §4.7's retry delay: min(60*2^(k-1), 3600) seconds,
// ±20% jitter. jitter is injected for deterministic tests.
func backoff(retryCount int, jitter func(base time.Duration) time.Duration) time.Duration {
	base := time.Duration(60) * time.Second
	for i := 1; i < retryCount; i++ {
		base *= 2
		if base > 3600*time.Second {
			base = 3600 * time.Second
			break
		}
	}
	return jitter(base)
}

func defaultJitter(base time.Duration) time.Duration {
	spread := float64(base) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	return base + time.Duration(offset)
}
