package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"distribution-service/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

const issuer = "distribution-service"

// Claims is the capability token payload
type Claims struct {
	PartnerID   int64              `json:"partner_id"`
	UserID      string             `json:"userid"`
	PartnerType models.PartnerType `json:"partner_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies capability tokens
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for session and its expiry
func (i *TokenIssuer) Issue(session models.Session) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := &Claims{
		PartnerID:   session.PartnerID,
		UserID:      session.UserID,
		PartnerType: session.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(session.PartnerID, 10),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies token and returns the session it carries. Every failure is ErrUnauthorized.
func (i *TokenIssuer) Parse(token string) (*models.Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	}
	if claims.PartnerType != models.PartnerTypeAdmin && claims.PartnerType != models.PartnerTypePartner {
		return nil, fmt.Errorf("%w: unknown partner type %q", models.ErrUnauthorized, claims.PartnerType)
	}

	return &models.Session{
		PartnerID: claims.PartnerID,
		UserID:    claims.UserID,
		Type:      claims.PartnerType,
	}, nil
}
