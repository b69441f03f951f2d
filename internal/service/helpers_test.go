package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/signnatural-api/internal/repo/memory"
	"github.com/diagnosis/signnatural-api/pkg/auth"
	"github.com/diagnosis/signnatural-api/pkg/events"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	logger.SetDefault(logger.Discard())
}

var testArgonParams = &argon2id.Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type sentCode struct {
	To, Name, Code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (f *fakeMailer) SendCode(_ context.Context, to, name, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCode{To: to, Name: name, Code: code})
	return f.err
}

func (f *fakeMailer) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Code
}

func (f *fakeMailer) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type testEnv struct {
	store   *memory.Store
	otp     *OTPEngine
	mailer  *fakeMailer
	issuer  *auth.Issuer
	bus     *events.LocalBus
	metrics *metrics.Metrics
	auth    AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	m := metrics.New("test")
	otp := NewOTPEngine(store.Codes(), NewBcryptHasher(bcrypt.MinCost), 10*time.Minute, m)
	mailer := &fakeMailer{}
	issuer := auth.NewIssuer("test-secret", time.Hour, "signnatural-api")
	bus := events.NewLocalBus()

	env := &testEnv{store: store, otp: otp, mailer: mailer, issuer: issuer, bus: bus, metrics: m}
	env.auth = NewAuthService(AuthDeps{
		Accounts:  store.Accounts(),
		OTP:       otp,
		Passwords: NewArgon2idHasher(testArgonParams),
		Mailer:    mailer,
		Issuer:    issuer,
		EventBus:  bus,
		Metrics:   m,
	})
	return env
}
