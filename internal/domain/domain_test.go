package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterRequest_NormalizeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{name: "valid", req: RegisterRequest{Name: " Ada ", Email: " ADA@X.com ", Password: "secret1"}},
		{name: "missing name", req: RegisterRequest{Email: "ada@x.com", Password: "secret1"}, wantErr: true},
		{name: "bad email", req: RegisterRequest{Name: "Ada", Email: "ada", Password: "secret1"}, wantErr: true},
		{name: "short password", req: RegisterRequest{Name: "Ada", Email: "ada@x.com", Password: "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "ada@x.com", tt.req.Email)
			assert.Equal(t, "Ada", tt.req.Name)
		})
	}
}

func TestIsNumericCode(t *testing.T) {
	assert.True(t, IsNumericCode("000123"))
	assert.False(t, IsNumericCode("12345"))
	assert.False(t, IsNumericCode("12345a"))
	assert.False(t, IsNumericCode("1234567"))
}

func TestOneTimeCode_IsExpired(t *testing.T) {
	now := time.Now()
	c := &OneTimeCode{ExpiresAt: now}
	assert.True(t, c.IsExpired(now))
	assert.False(t, c.IsExpired(now.Add(-time.Second)))
}

func TestNotification_VisibleTo(t *testing.T) {
	owner := int64(1)
	user := Viewer{AccountID: 2, Role: RoleUser}
	admin := Viewer{AccountID: 3, Role: RoleAdmin}

	own := &Notification{UserID: &owner, Audience: AudienceUser}
	assert.True(t, own.VisibleTo(Viewer{AccountID: 1, Role: RoleUser}))
	assert.False(t, own.VisibleTo(user))
	assert.False(t, own.VisibleTo(admin))

	admins := &Notification{Audience: AudienceAdmin}
	assert.False(t, admins.VisibleTo(user))
	assert.True(t, admins.VisibleTo(admin))

	all := &Notification{Audience: AudienceAll}
	assert.True(t, all.VisibleTo(user))
}

func TestSpecificErrorsKeepKind(t *testing.T) {
	assert.ErrorIs(t, ErrEmailNotVerified, ErrUnauthorized)
	assert.ErrorIs(t, ErrCodeNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrEmailTaken, ErrConflict)
	assert.NotErrorIs(t, ErrEmailNotVerified, ErrInvalidCredentials)
	assert.ErrorIs(t, ErrCodeMismatch, ErrCodeNotFound)
	assert.ErrorIs(t, ErrCodeMismatch, ErrNotFound)
	assert.NotErrorIs(t, ErrCodeNotFound, ErrCodeMismatch)
	assert.Equal(t, "invalid code", ErrCodeMismatch.Error())
}

func TestCreateNotificationRequest_Validate(t *testing.T) {
	r := CreateNotificationRequest{Message: "  hi "}
	r.Normalize()
	assert.Equal(t, AudienceUser, r.Audience)
	assert.Error(t, r.Validate(), "user audience needs a target")

	r.Audience = AudienceAll
	assert.NoError(t, r.Validate())

	r.Audience = "everyone"
	assert.Error(t, r.Validate())
}
