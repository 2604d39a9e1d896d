// Package utils holds token helpers shared by the auth middleware and the
// developer CLI.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the subset of access token claims the service relies on.
type Claims struct {
	UserID uint64
	Role   model.Role
}

var (
	ErrInvalidSubject = errors.New("token subject is not a user id")
	ErrInvalidRole    = errors.New("token role is not recognised")
)

// NewAccessToken builds and signs an HS256 JWT for a user. The JWT
// includes sub, role, exp and iat. Production tokens come from the
// account service; this exists for local use and tests.
func NewAccessToken(secret string, userID uint64, role model.Role, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": string(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token and extracts the caller. The
// subject may be encoded either as a decimal string or as a JSON number.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}

	var id uint64
	switch sub := mc["sub"].(type) {
	case string:
		id, err = strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return Claims{}, ErrInvalidSubject
		}
	case float64:
		if sub < 1 || sub != float64(uint64(sub)) {
			return Claims{}, ErrInvalidSubject
		}
		id = uint64(sub)
	default:
		return Claims{}, ErrInvalidSubject
	}
	if id == 0 {
		return Claims{}, ErrInvalidSubject
	}

	role, _ := mc["role"].(string)
	switch r := model.Role(role); r {
	case model.RoleAdmin, model.RoleStaff, model.RoleDoctor, model.RolePatient:
		return Claims{UserID: id, Role: r}, nil
	}
	return Claims{}, ErrInvalidRole
}
