package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/diagnosis/signnatural-api/pkg/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func register(t *testing.T, env *testEnv, name, email, password string) *RegisterResult {
	t.Helper()
	res, err := env.auth.Register(context.Background(), &domain.RegisterRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func otherCode(code string) string {
	if code == "123456" {
		return "654321"
	}
	return "123456"
}

func TestAuth_RegisterVerifyFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res := register(t, env, "Ada", "ada@x.com", "secret1")
	assert.True(t, res.CodeDelivered)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, 1, env.store.CodeCount(res.User.ID, domain.PurposeEmailVerification))

	code := env.mailer.last()
	require.True(t, domain.IsNumericCode(code))

	_, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: otherCode(code)})
	assert.ErrorIs(t, err, domain.ErrCodeMismatch)
	acc, _ := env.store.Accounts().FindByEmail(ctx, "ada@x.com")
	assert.False(t, acc.EmailVerified)

	session, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ADA@x.com ", OTP: code})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.User.EmailVerified)
	assert.Equal(t, 0, env.store.CodeCount(res.User.ID, domain.PurposeEmailVerification))

	acc, _ = env.store.Accounts().FindByEmail(ctx, "ada@x.com")
	assert.True(t, acc.EmailVerified)

	_, err = env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: code})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestAuth_ResendTwiceOnlyLatestVerifies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := register(t, env, "Ada", "ada@x.com", "secret1")

	var codes []string
	for len(codes) < 2 {
		_, err := env.auth.ResendCode(ctx, &domain.ResendCodeRequest{Email: "ada@x.com"})
		require.NoError(t, err)
		c := env.mailer.last()
		if len(codes) == 1 && c == codes[0] {
			continue
		}
		codes = append(codes, c)
	}
	assert.Equal(t, 1, env.store.CodeCount(res.User.ID, domain.PurposeEmailVerification))

	_, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: codes[0]})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)

	_, err = env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: codes[1]})
	require.NoError(t, err)
}

func TestAuth_LoginIssuesValidToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	res := register(t, env, "Ada", "ada@x.com", "secret1")
	_, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: env.mailer.last()})
	require.NoError(t, err)

	session, err := env.auth.Login(ctx, &domain.LoginRequest{Email: "ada@x.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := env.issuer.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Sub)
	assert.Equal(t, domain.RoleUser, claims.Role)

	later := env.issuer.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = later.Validate(session.Token)
	assert.Error(t, err)
}

func TestAuth_LoginRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	register(t, env, "Ada", "ada@x.com", "secret1")

	_, err := env.auth.Login(ctx, &domain.LoginRequest{Email: "ada@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrEmailNotVerified)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Email: "ada@x.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Email: "nobody@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, &domain.LoginRequest{Email: "ada@x.com"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Logins.WithLabelValues("unverified")))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Logins.WithLabelValues("invalid")))
}

func TestAuth_RegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "Ada", "ada@x.com", "secret1")

	_, err := env.auth.Register(context.Background(), &domain.RegisterRequest{Name: "Ada 2", Email: "ADA@x.com", Password: "secret2"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
	assert.Len(t, env.mailer.sent, 1)
}

func TestAuth_RegisterValidationHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Register(context.Background(), &domain.RegisterRequest{Name: "Ada", Email: "ada@x.com", Password: "abc"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	acc, _ := env.store.Accounts().FindByEmail(context.Background(), "ada@x.com")
	assert.Nil(t, acc)
	assert.Empty(t, env.mailer.sent)
}

func TestAuth_RegisterSurvivesDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mailer.fail(errors.New("smtp down"))

	res := register(t, env, "Ada", "ada@x.com", "secret1")
	assert.False(t, res.CodeDelivered)
	assert.Contains(t, res.Message, "resend")
	assert.Equal(t, 1, env.store.CodeCount(res.User.ID, domain.PurposeEmailVerification))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EmailDeliveries.WithLabelValues("failure")))

	acc, _ := env.store.Accounts().FindByEmail(ctx, "ada@x.com")
	require.NotNil(t, acc)

	_, err := env.auth.ResendCode(ctx, &domain.ResendCodeRequest{Email: "ada@x.com"})
	assert.ErrorIs(t, err, domain.ErrDelivery)

	env.mailer.fail(nil)
	_, err = env.auth.ResendCode(ctx, &domain.ResendCodeRequest{Email: "ada@x.com"})
	require.NoError(t, err)
	_, err = env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: env.mailer.last()})
	require.NoError(t, err)
}

func TestAuth_ResendEdgeCases(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.auth.ResendCode(ctx, &domain.ResendCodeRequest{Email: "ghost@x.com"})
	require.NoError(t, err)
	assert.Equal(t, msgResendGeneric, res.Message)
	assert.Empty(t, env.mailer.sent)

	register(t, env, "Ada", "ada@x.com", "secret1")
	_, err = env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: env.mailer.last()})
	require.NoError(t, err)

	_, err = env.auth.ResendCode(ctx, &domain.ResendCodeRequest{Email: "ada@x.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)
}

func TestAuth_VerifyUnknownEmailLooksLikeMissingCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.VerifyEmail(context.Background(), &domain.VerifyEmailRequest{Email: "ghost@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestAuth_PublishesAccountEventsWithoutCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var registered []events.AccountRegisteredEvent
	var raw [][]byte
	require.NoError(t, env.bus.Subscribe(events.AccountRegistered, func(msg *events.Message) {
		var evt events.AccountRegisteredEvent
		require.NoError(t, msg.Decode(&evt))
		registered = append(registered, evt)
		raw = append(raw, msg.Data)
	}))
	verified := 0
	require.NoError(t, env.bus.Subscribe(events.AccountVerified, func(*events.Message) { verified++ }))

	res := register(t, env, "Ada", "ada@x.com", "secret1")
	require.Len(t, registered, 1)
	assert.Equal(t, res.User.ID, registered[0].AccountID)
	assert.True(t, registered[0].CodeDelivered)
	assert.NotContains(t, string(raw[0]), env.mailer.last())

	_, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: env.mailer.last()})
	require.NoError(t, err)
	assert.Equal(t, 1, verified)
}

func TestAuth_CreateAdminAndMe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	admin, err := env.auth.CreateAdmin(ctx, &domain.RegisterRequest{Name: "Root", Email: "root@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.True(t, admin.EmailVerified)
	assert.Empty(t, env.mailer.sent)

	session, err := env.auth.Login(ctx, &domain.LoginRequest{Email: "root@x.com", Password: "secret1"})
	require.NoError(t, err)
	claims, err := env.issuer.Validate(session.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())

	me, err := env.auth.Me(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "root@x.com", me.Email)

	_, err = env.auth.Me(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = env.auth.CreateAdmin(ctx, &domain.RegisterRequest{Name: "Root", Email: "root@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

// resendDuringConsume stores a new code right after a successful consume, as a
// resend landing between the two steps of VerifyEmail would.
type resendDuringConsume struct {
	repo.CodeStore
	accountID int64
}

func (c *resendDuringConsume) Consume(ctx context.Context, id int64, codeHash string) (bool, error) {
	ok, err := c.CodeStore.Consume(ctx, id, codeHash)
	if ok {
		if _, err := c.CodeStore.Replace(ctx, c.accountID, domain.PurposeEmailVerification, "late", time.Now().Add(time.Hour)); err != nil {
			return false, err
		}
	}
	return ok, err
}

func TestAuth_VerifyRevokesCodesIssuedMeanwhile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	codes := &resendDuringConsume{CodeStore: env.store.Codes()}
	racing := NewOTPEngine(codes, NewBcryptHasher(bcrypt.MinCost), 10*time.Minute, env.metrics)
	env.auth = NewAuthService(AuthDeps{
		Accounts:  env.store.Accounts(),
		OTP:       racing,
		Passwords: NewArgon2idHasher(testArgonParams),
		Mailer:    env.mailer,
		Issuer:    env.issuer,
		EventBus:  env.bus,
		Metrics:   env.metrics,
	})

	res := register(t, env, "Ada", "ada@x.com", "secret1")
	codes.accountID = res.User.ID

	_, err := env.auth.VerifyEmail(ctx, &domain.VerifyEmailRequest{Email: "ada@x.com", OTP: env.mailer.last()})
	require.NoError(t, err)
	assert.Equal(t, 0, env.store.CodeCount(res.User.ID, domain.PurposeEmailVerification))
}
