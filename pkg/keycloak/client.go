package keycloak

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/leozw/zoom-dashboard/internal/config"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

type Client struct {
	config config.KeycloakConfig
	http   *http.Client
	logger *zap.Logger

	mu         sync.RWMutex
	publicKeys map[string]*rsa.PublicKey
}

func NewClient(cfg config.KeycloakConfig, logger *zap.Logger) *Client {
	return &Client{
		config:     cfg,
		http:       &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With(zap.String("service", "keycloak")),
		publicKeys: make(map[string]*rsa.PublicKey),
	}
}

func (c *Client) realmURL() string {
	return fmt.Sprintf("%s/realms/%s", strings.TrimRight(c.config.URL, "/"), c.config.Realm)
}

// TokenURL is the realm's OpenID Connect token endpoint.
func (c *Client) TokenURL() string {
	return c.realmURL() + "/protocol/openid-connect/token"
}

// HTTPClient returns a client that authenticates every request with a
// client-credentials token for the configured audience. The token is fetched
// on first use and reused until it expires.
func (c *Client) HTTPClient(ctx context.Context, timeout time.Duration) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     c.TokenURL(),
	}
	if c.config.Audience != "" {
		cc.EndpointParams = map[string][]string{"audience": {c.config.Audience}}
	}

	hc := cc.Client(ctx)
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return hc
}

// ValidateToken verifies an RS256 token against the realm's signing keys.
func (c *Client) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return c.publicKey(ctx, kid)
	}, jwt.WithIssuer(c.realmURL()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	c.logger.Debug("Token validated",
		zap.Any("subject", claims["sub"]),
		zap.Any("client", claims["azp"]),
	)
	return claims, nil
}

func (c *Client) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.publicKeys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	// Unknown kid means first use or key rotation
	if err := c.fetchPublicKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.publicKeys[kid]; ok {
		return key, nil
	}
	if kid == "" && len(c.publicKeys) == 1 {
		for _, key := range c.publicKeys {
			return key, nil
		}
	}
	return nil, fmt.Errorf("no signing key with kid %q", kid)
}

func (c *Client) fetchPublicKeys(ctx context.Context) error {
	url := c.realmURL() + "/protocol/openid-connect/certs"
	c.logger.Info("Fetching JWKS", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Use != "sig" {
			continue
		}
		publicKey, err := parseJWK(key.N, key.E)
		if err != nil {
			c.logger.Warn("Skipping unparsable key", zap.String("kid", key.Kid), zap.Error(err))
			continue
		}
		keys[key.Kid] = publicKey
	}
	if len(keys) == 0 {
		return fmt.Errorf("no suitable RSA signing key found")
	}

	c.mu.Lock()
	c.publicKeys = keys
	c.mu.Unlock()
	return nil
}

func parseJWK(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
