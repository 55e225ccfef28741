package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/chatdesk/chatdesk/pkg/types"
)

const (
	TOKEN_KEY = "Authorization"
)

// TokenClaims is the JWT payload issued at login. Role decides which side of
// a chat session the connection speaks for.
type TokenClaims struct {
	Subject    string `json:"sub"`
	Username   string `json:"uname"`
	Role       string `json:"role"`
	ExpireTime int64  `json:"exp"`
	NotBefore  int64  `json:"nbf"`
}

func NewTokenClaims(subject, username, role string, expireTime int64) TokenClaims {
	return TokenClaims{
		Subject:    subject,
		Username:   username,
		Role:       role,
		ExpireTime: expireTime,
		NotBefore:  time.Now().Unix() - 1,
	}
}

func (t TokenClaims) GetUser() string {
	return t.Subject
}

func (t TokenClaims) GetRole() string {
	return t.Role
}

func (t TokenClaims) IsAgent() bool {
	return t.Role == string(types.ROLE_AGENT)
}

func GenerateJWT(info TokenClaims, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":   info.Subject,
		"uname": info.Username,
		"role":  info.Role,
		"exp":   info.ExpireTime,
		"nbf":   info.NotBefore,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

var (
	ErrInvalidJWT = errors.New("invalid token")
)

func VerifyToken(tokenString string, secret []byte) (*TokenClaims, error) {
	claims, err := ParseJWT(tokenString, secret)
	if err != nil {
		return nil, err
	}

	if claims.ExpireTime < time.Now().Unix() || claims.NotBefore > time.Now().Unix() {
		return nil, fmt.Errorf("expired token, %w", ErrInvalidJWT)
	}

	return claims, nil
}

func ParseJWT(tokenString string, secret []byte) (*TokenClaims, error) {
	result := &TokenClaims{}
	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v, %w", token.Header["alg"], ErrInvalidJWT)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return nil, ErrInvalidJWT
		}

		result.Subject, _ = claims["sub"].(string)
		result.Username, _ = claims["uname"].(string)
		result.Role, _ = claims["role"].(string)
		if exp, ok := claims["exp"].(float64); ok {
			result.ExpireTime = int64(exp)
		}
		if nbf, ok := claims["nbf"].(float64); ok {
			result.NotBefore = int64(nbf)
		}

		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err.Error(), ErrInvalidJWT)
	}

	if result.Subject == "" {
		return nil, ErrInvalidJWT
	}

	return result, nil
}
