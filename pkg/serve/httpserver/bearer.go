// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AUTHORIZATION = "Authorization"
	BearerPrefix  = "Bearer "
)

var (
	ErrStop = errors.New("stop")
)

// BearerMD carries the authenticated principal. The core trusts the uid it
// resolves here; authorization lives entirely at this layer.
type BearerMD struct {
	UID                  int64 `json:"uid,string"`
	jwt.RegisteredClaims       // v5 new
}

func GenerateJWT(secret string, uid int64, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := BearerMD{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt), // expiresAt
			IssuedAt:  jwt.NewNumericDate(now),       // issued
			NotBefore: jwt.NewNumericDate(now),       // not before
		},
	}
	// HS256
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

func (s *Server) parseJWT(w http.ResponseWriter, r *http.Request, bearerToken string) (*BearerMD, error) {
	var claims *BearerMD
	_, err := jwt.ParseWithClaims(bearerToken, &BearerMD{}, func(token *jwt.Token) (any, error) {
		var ok bool
		if claims, ok = token.Claims.(*BearerMD); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return []byte(s.Secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			renderFailureFormat(w, r, http.StatusBadRequest, "malformed token: %s", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			renderFailureFormat(w, r, http.StatusForbidden, "invalid token: %s", err)
		case errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet):
			renderFailureFormat(w, r, http.StatusForbidden, "expired token: %s", err)
		default:
			renderFailureFormat(w, r, http.StatusInternalServerError, "parse token error: %s", err)
		}
		return nil, err
	}
	return claims, nil
}

// EqualFold is strings.EqualFold, ASCII only. It reports whether s and t
// are equal, ASCII-case-insensitively.
func EqualFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if lower(s[i]) != lower(t[i]) {
			return false
		}
	}
	return true
}

// lower returns the ASCII lowercase version of b.
func lower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func parseBearerToken(auth string) (string, bool) {
	if len(auth) < len(BearerPrefix) || !EqualFold(auth[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}
	return auth[len(BearerPrefix):], true
}

// doAuth resolves the caller. With no configured secret the server runs open,
// uid 0; with a secret every API call needs a bearer token.
func (s *Server) doAuth(w http.ResponseWriter, r *http.Request) (*Request, error) {
	if len(s.Secret) == 0 {
		return &Request{Request: r}, nil
	}
	bearerToken, ok := parseBearerToken(r.Header.Get(AUTHORIZATION))
	if !ok {
		renderFailure(w, r, http.StatusUnauthorized, "missing credential")
		return nil, ErrStop
	}
	claims, err := s.parseJWT(w, r, bearerToken)
	if err != nil {
		return nil, err
	}
	return &Request{Request: r, UID: claims.UID}, nil
}

func (s *Server) OnFunc(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.doAuth(w, r)
		if err != nil {
			return
		}
		fn(w, req)
	}
}
