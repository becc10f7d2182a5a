package screening

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/esclipse/SynthraCloud/pkg/config"
)

// Token errors
var (
	ErrMissingToken = errors.New("missing poll token")
	ErrInvalidToken = errors.New("invalid or expired poll token")
)

// unsignedPrefix marks a plain base64url JSON token
const unsignedPrefix = "v1."

// TokenPayload is everything a poll needs to find an upstream task again.
// Strategy, AIPrompt and Score carry the annotation request across polls.
type TokenPayload struct {
	TaskID    string `json:"taskId"`
	BaseURL   string `json:"baseUrl"`
	StatusURL string `json:"statusUrl,omitempty"`
	ResultURL string `json:"resultUrl,omitempty"`
	RetryInMs int    `json:"retryInMs,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	AIPrompt  string `json:"aiPrompt,omitempty"`
	Score     bool   `json:"score,omitempty"`
}

type tokenClaims struct {
	Payload TokenPayload `json:"p"`
	jwt.RegisteredClaims
}

// TokenCodec encodes continuation tokens. Without a secret tokens are
// reversible base64url JSON; with one they are HS256 JWTs with an expiry and
// unsigned tokens are refused.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a codec from config
func NewTokenCodec(cfg config.TokenConfig) *TokenCodec {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &TokenCodec{ttl: ttl, now: time.Now}
	if cfg.Secret != "" {
		c.secret = []byte(cfg.Secret)
	}
	return c
}

// Signed reports whether tokens are signed
func (c *TokenCodec) Signed() bool {
	return len(c.secret) > 0
}

// Encode serializes a payload into an opaque token
func (c *TokenCodec) Encode(p TokenPayload) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	if !c.Signed() {
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to marshal token: %w", err)
		}
		return unsignedPrefix + base64.RawURLEncoding.EncodeToString(data), nil
	}

	now := c.now()
	claims := tokenClaims{
		Payload: p,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode parses a token produced by Encode
func (c *TokenCodec) Decode(token string) (TokenPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenPayload{}, ErrMissingToken
	}

	var p TokenPayload
	if c.Signed() {
		claims := &tokenClaims{}
		_, err := jwt.ParseWithClaims(token, claims,
			func(*jwt.Token) (interface{}, error) { return c.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(c.now),
		)
		if err != nil {
			return TokenPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		p = claims.Payload
	} else {
		if !strings.HasPrefix(token, unsignedPrefix) {
			return TokenPayload{}, ErrInvalidToken
		}
		data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, unsignedPrefix))
		if err != nil {
			return TokenPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return TokenPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if err := p.validate(); err != nil {
		return TokenPayload{}, err
	}
	return p, nil
}

func (p TokenPayload) validate() error {
	if strings.TrimSpace(p.TaskID) == "" || strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("%w: taskId and baseUrl are required", ErrInvalidToken)
	}
	if p.RetryInMs < 0 {
		return fmt.Errorf("%w: negative retryInMs", ErrInvalidToken)
	}
	return nil
}

// checkOrigin verifies the token points at the configured job service: the
// base URL must match and explicit URLs must share its host.
func checkOrigin(p TokenPayload, baseURL string) error {
	if strings.TrimRight(p.BaseURL, "/") != strings.TrimRight(baseURL, "/") {
		return fmt.Errorf("%w: foreign base URL", ErrInvalidToken)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	for _, raw := range []string{p.StatusURL, p.ResultURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || !strings.EqualFold(u.Host, base.Host) || u.Scheme != base.Scheme {
			return fmt.Errorf("%w: foreign task URL", ErrInvalidToken)
		}
	}
	return nil
}
