package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"bitmex-client/internal/errs"
)

// authExpires computes the expires timestamp (epoch seconds) carried in the
// WS auth request, skewed forward by skewSec to tolerate clock drift and
// network latency.
func authExpires(now time.Time, skewSec int) int64 {
	return now.Unix() + int64(skewSec)
}

// signWSAuth computes the HMAC-SHA256 signature BitMEX expects for the
// authKeyExpires request: HMAC(apiSecret, "GET/realtime" + expires).
func signWSAuth(apiSecret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(fmt.Sprintf("GET/realtime%d", expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

// authSource distinguishes a caller-initiated login from an automatic
// relogin after a reconnect, for logging/metrics and the shouldRelogin
// policy.
type authSource string

const (
	authSourceManual    authSource = "manual"
	authSourceReconnect authSource = "reconnect"
)

// authAttempt tracks the single in-flight authentication request. Only one
// may be outstanding at a time; a second concurrent Authenticate call fails
// immediately with an "in progress" error.
type authAttempt struct {
	source    authSource
	startedAt time.Time
	done      chan error
}

// newAuthAttempt starts tracking an attempt.
func newAuthAttempt(source authSource) *authAttempt {
	return &authAttempt{source: source, startedAt: time.Now(), done: make(chan error, 1)}
}

// resolve completes the attempt exactly once; subsequent calls are no-ops.
func (a *authAttempt) resolve(err error) {
	select {
	case a.done <- err:
	default:
	}
}

// errAuthInProgress is returned when a second auth attempt is requested
// while one is already outstanding.
var errAuthInProgress = errs.NewAuth(errs.AuthNetwork, "authentication already in progress")

// classifyAuthFailure turns a server-reported auth failure reason into an
// *errs.Error, treating "already authenticated" as success (nil) per the
// module's reason taxonomy.
func classifyAuthFailure(reason string) error {
	switch errs.ClassifyAuthReason(reason) {
	case errs.AlreadyAuthed:
		return nil
	case errs.BadCredentials:
		return errs.NewAuth(errs.BadCredentials, reason)
	case errs.ClockSkew:
		return errs.NewAuth(errs.ClockSkew, reason)
	default:
		return errs.NewAuth(errs.AuthNetwork, reason)
	}
}

// shouldStopRelogin reports whether a failure should clear shouldRelogin —
// bad credentials or clock skew require fresh input from the caller, so no
// further automatic relogin is attempted.
func shouldStopRelogin(err error) bool {
	e, ok := err.(*errs.Error)
	if !ok {
		return false
	}
	return e.Reason == errs.BadCredentials || e.Reason == errs.ClockSkew
}

// shouldRetryAuth reports whether a failure while source is reconnect should
// schedule an auth-retry timer on the same exponential schedule as socket
// reconnect.
func shouldRetryAuth(source authSource, err error) bool {
	if source != authSourceReconnect || err == nil {
		return false
	}
	e, ok := err.(*errs.Error)
	if !ok {
		return false
	}
	return e.Reason == errs.AuthTimeout || e.Reason == errs.AuthNetwork
}
