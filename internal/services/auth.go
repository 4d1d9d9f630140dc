package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onyxchat/relay-backend/internal/config"
	"github.com/onyxchat/relay-backend/internal/logger"
)

type AuthService interface {
	// Login exchanges a roster credential for a signed token. Unknown agent
	// and wrong secret are indistinguishable to the caller.
	Login(agentID int64, secret string) (string, error)
	ValidateToken(tokenString string) (int64, error)
}

type authService struct {
	roster    *config.Roster
	secretKey []byte
	tokenTTL  time.Duration
	log       *logger.Logger
}

func NewAuthService(roster *config.Roster, secretKey string, tokenTTL time.Duration, baseLog *logger.Logger) AuthService {
	return &authService{
		roster:    roster,
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		log:       baseLog.With("service", "AuthService"),
	}
}

func (as *authService) Login(agentID int64, secret string) (string, error) {
	agent := as.roster.FindByCredentials(agentID, secret)
	if agent == nil {
		as.log.Warn("login refused", "agent_id", agentID)
		return "", fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(agent.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	as.log.Info("agent logged in", "agent_id", agentID)
	return signed, nil
}

func (as *authService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.secretKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	agentID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %w", err)
	}
	// Roster membership is rechecked on every request so removing an agent
	// from the roster revokes their access at the next call.
	if !as.roster.IsAgent(agentID) {
		return 0, fmt.Errorf("agent %d not in roster", agentID)
	}
	return agentID, nil
}
