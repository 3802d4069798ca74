package users

import "github.com/goliatone/go-router"

// SimpleConfig is a plain struct implementation of Config. Construct it at
// startup and hand it to the components that need it; nothing in this
// package reads configuration from ambient globals.
type SimpleConfig struct {
	SigningKey      string
	SigningMethod   string
	ContextKey      string
	TokenExpiration int
	TokenLookup     string
	AuthScheme      string
	Issuer          string
	Audience        []string
}

var _ Config = (*SimpleConfig)(nil)

// NewDefaultConfig returns a SimpleConfig with sensible defaults for
// everything except the signing key, which has no safe default.
func NewDefaultConfig(signingKey string) *SimpleConfig {
	return &SimpleConfig{
		SigningKey:      signingKey,
		SigningMethod:   "HS256",
		ContextKey:      "user",
		TokenExpiration: 24,
		TokenLookup:     "header:" + router.HeaderAuthorization,
		AuthScheme:      "Bearer",
		Issuer:          "go-users",
	}
}

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

// GetTokenExpiration is the token TTL in hours
func (c *SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c *SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:" + router.HeaderAuthorization
	}
	return c.TokenLookup
}

func (c *SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }
