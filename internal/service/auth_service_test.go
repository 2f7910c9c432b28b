package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
)

func newAuthServiceForTest() *AuthService {
	return NewAuthService(zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "kindrid",
	})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newAuthServiceForTest()

	issued, err := svc.IssueToken("teacher-1", models.RoleTeacher, "rivera@example.com", "Ms. Rivera")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), issued.ExpiresIn)
	assert.Equal(t, models.RoleTeacher, issued.Role)

	claims, err := svc.ValidateToken(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "rivera@example.com", claims.Email)
	assert.Equal(t, "kindrid", claims.Issuer)
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	svc := newAuthServiceForTest()
	_, err := svc.IssueToken("x", models.UserRole("JANITOR"), "", "")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestIssueTokenGeneratesSubject(t *testing.T) {
	svc := newAuthServiceForTest()
	issued, err := svc.IssueToken(" ", models.RoleParent, "", "")
	require.NoError(t, err)
	claims, err := svc.ValidateToken(issued.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.UserID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newAuthServiceForTest()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	issued, err := svc.IssueToken("admin", models.RoleAdmin, "", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(issued.AccessToken)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsForeignSecretAndIssuer(t *testing.T) {
	svc := newAuthServiceForTest()

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "kindrid"})
	issued, err := other.IssueToken("admin", models.RoleAdmin, "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(issued.AccessToken)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	wrongIssuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	issued, err = wrongIssuer.IssueToken("admin", models.RoleAdmin, "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(issued.AccessToken)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	svc := newAuthServiceForTest()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "x", Role: models.RoleAdmin})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
