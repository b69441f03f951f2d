package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a zero-padded six digit code drawn uniformly from r.
func GenerateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", domain.CodeLength, n.Int64()), nil
}

// OTPEngine issues and checks one-time codes. Plaintext codes leave it only
// as the return value of Issue.
type OTPEngine struct {
	codes   repo.CodeStore
	hasher  CodeHasher
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	random  io.Reader
}

func NewOTPEngine(codes repo.CodeStore, hasher CodeHasher, ttl time.Duration, m *metrics.Metrics) *OTPEngine {
	if m == nil {
		m = metrics.New("signnatural")
	}
	return &OTPEngine{
		codes:   codes,
		hasher:  hasher,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
		random:  rand.Reader,
	}
}

func (e *OTPEngine) WithClock(now func() time.Time) *OTPEngine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *OTPEngine) TTL() time.Duration {
	return e.ttl
}

// Issue replaces any code for (accountID, purpose) and returns the new one.
func (e *OTPEngine) Issue(ctx context.Context, accountID int64, purpose domain.Purpose) (string, time.Time, error) {
	if !purpose.Valid() {
		return "", time.Time{}, domain.Invalid("unknown code purpose")
	}

	code, err := GenerateCode(e.random)
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := e.hasher.Hash(code)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := e.now().Add(e.ttl)
	if _, err := e.codes.Replace(ctx, accountID, purpose, hash, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("store code: %w", err)
	}

	e.metrics.CodesIssued.WithLabelValues(string(purpose)).Inc()
	logger.InfoContext(ctx, "one-time code issued", "account_id", accountID, "purpose", purpose, "expires_at", expiresAt)
	return code, expiresAt, nil
}

// Verify consumes the active code when submitted matches it. A missing or
// expired code yields ErrCodeNotFound, a wrong one ErrCodeMismatch.
func (e *OTPEngine) Verify(ctx context.Context, accountID int64, purpose domain.Purpose, submitted string) error {
	active, err := e.codes.FindActive(ctx, accountID, purpose)
	if err != nil {
		return fmt.Errorf("find code: %w", err)
	}
	if active == nil || active.IsExpired(e.now()) {
		e.metrics.CodeVerifications.WithLabelValues("not_found").Inc()
		return domain.ErrCodeNotFound
	}

	ok, err := e.hasher.Compare(submitted, active.CodeHash)
	if err != nil {
		logger.ErrorContext(ctx, "code comparison failed", "error", err, "account_id", accountID)
		ok = false
	}
	if !ok {
		e.metrics.CodeVerifications.WithLabelValues("mismatch").Inc()
		return domain.ErrCodeMismatch
	}

	consumed, err := e.codes.Consume(ctx, active.ID, active.CodeHash)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		// Another request consumed or replaced it between lookup and delete.
		e.metrics.CodeVerifications.WithLabelValues("not_found").Inc()
		return domain.ErrCodeNotFound
	}

	e.metrics.CodeVerifications.WithLabelValues("success").Inc()
	return nil
}

// Revoke deletes any code held for (accountID, purpose), expired or not.
func (e *OTPEngine) Revoke(ctx context.Context, accountID int64, purpose domain.Purpose) error {
	if err := e.codes.DeleteFor(ctx, accountID, purpose); err != nil {
		return fmt.Errorf("revoke codes: %w", err)
	}
	return nil
}

// Reap deletes expired codes.
func (e *OTPEngine) Reap(ctx context.Context) (int64, error) {
	n, err := e.codes.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired codes: %w", err)
	}
	return n, nil
}

// RunReaper calls Reap every interval until ctx ends.
func (e *OTPEngine) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := e.Reap(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "code reaper failed", "error", err)
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "expired codes removed", "count", n)
			}
		}
	}
}
