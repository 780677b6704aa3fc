package ratelimit

import (
	"net/http"
	"strconv"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// WriteHeaders sets the quota headers for a checked request.
func WriteHeaders(w http.ResponseWriter, r LimitResult) {
	if !r.Checked {
		return
	}
	w.Header().Set(headerRateLimitLimit, strconv.FormatInt(r.Limit, 10))
	w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(r.Remaining, 10))
	w.Header().Set(headerRateLimitReset, strconv.FormatInt(int64(r.ResetAfter.Seconds()), 10))
}
