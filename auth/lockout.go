package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
)

// untrustedNonce keys the shared lockout bucket for clients without a valid
// device cookie. Locking it never affects trusted devices.
const untrustedNonce = ""

// Protector implements device-cookie bruteforce protection. A successful
// login issues an HMAC-signed cookie naming the (username, nonce) device
// pair; repeated failures lock out either one trusted device or the shared
// untrusted bucket, never the account as a whole.
type Protector struct {
	secret        []byte
	maxFailed     int
	lockoutPeriod time.Duration
	lockouts      db.LockoutStore

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewProtector wires the bruteforce protector.
func NewProtector(secret string, maxFailed int, lockoutPeriod time.Duration, lockouts db.LockoutStore) *Protector {
	return &Protector{
		secret:        []byte(secret),
		maxFailed:     maxFailed,
		lockoutPeriod: lockoutPeriod,
		lockouts:      lockouts,
		failures:      make(map[string][]time.Time),
	}
}

// IssueCookie mints a device cookie for a freshly authenticated user.
func (p *Protector) IssueCookie(username string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(raw)
	return p.encode(username, nonce), nil
}

func (p *Protector) encode(username, nonce string) string {
	payload := username + ":" + nonce
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
}

// parse validates a device cookie and returns its (username, nonce) pair.
func (p *Protector) parse(cookie string) (string, string, bool) {
	parts := strings.SplitN(cookie, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", false
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[1])) != 1 {
		return "", "", false
	}
	fields := strings.SplitN(string(payload), ":", 2)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// bucket maps a login attempt to its failure-tracking bucket. A cookie only
// designates a trusted device when it was issued for the same username.
func (p *Protector) bucket(username, cookie string) string {
	if cookie != "" {
		if cookieUser, nonce, ok := p.parse(cookie); ok && cookieUser == username {
			return nonce
		}
	}
	return untrustedNonce
}

// CheckLocked refuses the attempt while its bucket is locked out.
func (p *Protector) CheckLocked(ctx context.Context, username, cookie string) error {
	nonce := p.bucket(username, cookie)
	row, err := p.lockouts.Get(ctx, username, nonce)
	if err != nil {
		return err
	}
	if row != nil && row.Expires > common.FormatTime(time.Now().UTC()) {
		return apierr.ErrDeviceCookieLockout
	}
	return nil
}

// RegisterFailure counts a failed attempt. Crossing the threshold inside the
// sliding window locks the bucket for the configured period.
func (p *Protector) RegisterFailure(ctx context.Context, username, cookie string) error {
	nonce := p.bucket(username, cookie)
	key := username + "\x00" + nonce
	now := time.Now().UTC()

	p.mu.Lock()
	window := p.failures[key]
	pruned := window[:0]
	for _, t := range window {
		if now.Sub(t) < p.lockoutPeriod {
			pruned = append(pruned, t)
		}
	}
	pruned = append(pruned, now)
	locked := len(pruned) >= p.maxFailed
	if locked {
		pruned = nil
	}
	p.failures[key] = pruned
	p.mu.Unlock()

	if !locked {
		return nil
	}
	common.Logger.WithField("username", username).Warn("locking out device after repeated login failures")
	return p.lockouts.Upsert(ctx, &model.Lockout{
		Username: username,
		Nonce:    nonce,
		Expires:  common.FormatTime(now.Add(p.lockoutPeriod)),
	})
}

// RegisterSuccess clears the failure window of the attempt's bucket.
func (p *Protector) RegisterSuccess(username, cookie string) {
	nonce := p.bucket(username, cookie)
	p.mu.Lock()
	delete(p.failures, username+"\x00"+nonce)
	p.mu.Unlock()
}

// Sweep deletes expired lockout rows until ctx ends.
func (p *Protector) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.lockouts.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				common.Logger.WithError(err).Error("sweeping expired lockouts")
				continue
			}
			if n > 0 {
				common.Logger.WithField("deleted", n).Debug("swept expired lockouts")
			}
		}
	}
}
