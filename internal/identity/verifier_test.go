package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestVerify(t *testing.T) {
	now := time.Now()
	verifier := NewVerifier(testSecret, "")

	tcases := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{
			name: "userId claim",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, Claims{
				UserID: "cust-1",
				RegisteredClaims: jwt.RegisteredClaims{
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				},
			}),
			wantID: "cust-1",
		},
		{
			name: "subject fallback",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
				Subject:   "agent-7",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
			wantID: "agent-7",
		},
		{
			name: "expired",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, Claims{
				UserID: "cust-1",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
				},
			}),
			wantErr: ErrExpiredToken,
		},
		{
			name: "wrong key",
			token: signToken(t, jwt.SigningMethodHS256, []byte("other"), Claims{
				UserID: "cust-1",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				},
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing subject",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing exp",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, Claims{
				UserID: "cust-1",
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed",
			token:   "not-a-jwt",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := verifier.Verify(context.Background(), tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, id.UserID)
		})
	}
}

func TestVerifyIssuer(t *testing.T) {
	verifier := NewVerifier(testSecret, "shop-auth")
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	good := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "u1", Issuer: "shop-auth", ExpiresAt: exp})
	bad := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "u1", Issuer: "someone-else", ExpiresAt: exp})

	_, err := verifier.Verify(context.Background(), good)
	assert.NoError(t, err)

	_, err = verifier.Verify(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	verifier := NewVerifier(testSecret, "")
	token := signToken(t, jwt.SigningMethodHS512, testSecret, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
