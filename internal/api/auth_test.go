package api

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticateWS_ValidToken(t *testing.T) {
	srv, _ := newTestServer(t)

	token, err := srv.IssueToken("user-1")
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+token+"&userId=user-1", nil)
	userID, err := srv.authenticateWS(req)
	if err != nil {
		t.Fatalf("authenticateWS() error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}
}

func TestAuthenticateWS_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/ws?userId=user-1", nil)
	if _, err := srv.authenticateWS(req); !errors.Is(err, ErrMissingToken) {
		t.Errorf("error = %v, want ErrMissingToken", err)
	}
}

func TestAuthenticateWS_SubjectMismatch(t *testing.T) {
	srv, _ := newTestServer(t)

	token, err := srv.IssueToken("user-1")
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+token+"&userId=user-2", nil)
	if _, err := srv.authenticateWS(req); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("error = %v, want ErrTokenMismatch", err)
	}
}

func TestAuthenticateWS_WrongSecret(t *testing.T) {
	srv, _ := newTestServer(t)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("attacker-controlled-secret-value"))
	if err != nil {
		t.Fatalf("signing forged token: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+forged+"&userId=user-1", nil)
	if _, err := srv.authenticateWS(req); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticateWS_ExpiredToken(t *testing.T) {
	srv, _ := newTestServer(t)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(srv.secCfg.JWT.Secret))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+expired+"&userId=user-1", nil)
	if _, err := srv.authenticateWS(req); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticateWS_UnexpectedAlgorithm(t *testing.T) {
	srv, _ := newTestServer(t)

	// alg=none tokens must never validate.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing unsigned token: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+unsigned+"&userId=user-1", nil)
	if _, err := srv.authenticateWS(req); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
