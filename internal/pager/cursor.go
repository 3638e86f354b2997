package pager

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCursor is returned when a cursor fails signature, expiry or viewer checks.
var ErrInvalidCursor = errors.New("invalid cursor")

const cursorIssuer = "fcgift"

type cursorClaims struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	jwt.RegisteredClaims
}

// Cursor is the page position held by one viewer.
type Cursor struct {
	Viewer   int64
	Page     int
	PageSize int
}

// CursorCodec signs and verifies page cursors with HMAC-SHA256.
type CursorCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCursorCodec creates a codec. ttl <= 0 issues cursors without expiry.
func NewCursorCodec(secret string, ttl time.Duration) *CursorCodec {
	return &CursorCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Encode returns a signed token bound to c.Viewer.
func (cc *CursorCodec) Encode(c Cursor) (string, error) {
	now := cc.now()
	claims := cursorClaims{
		Page:     c.Page,
		PageSize: c.PageSize,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cursorIssuer,
			Subject:  strconv.FormatInt(c.Viewer, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if cc.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cc.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cc.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign cursor: %w", err)
	}
	return token, nil
}

// Decode verifies token and checks that it was issued to viewer.
func (cc *CursorCodec) Decode(token string, viewer int64) (Cursor, error) {
	claims := &cursorClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return cc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cursorIssuer),
		jwt.WithTimeFunc(cc.now),
	)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	if claims.Subject != strconv.FormatInt(viewer, 10) {
		return Cursor{}, fmt.Errorf("%w: issued to another viewer", ErrInvalidCursor)
	}
	if claims.Page < 1 {
		return Cursor{}, fmt.Errorf("%w: page %d", ErrInvalidCursor, claims.Page)
	}

	return Cursor{Viewer: viewer, Page: claims.Page, PageSize: claims.PageSize}, nil
}
