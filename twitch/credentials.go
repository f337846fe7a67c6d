package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tnicklin/grassy/clock"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

var _ TokenProvider = (*Credentials)(nil)

// defaultTokenLifetime is used when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// Credentials owns the process-wide bearer token. Readers take a snapshot
// under a read lock; refreshes are collapsed so concurrent callers share
// one token request.
type Credentials struct {
	clientID     string
	clientSecret string
	tokenURL     string
	http         *http.Client
	clock        clock.Clock
	logger       logger.Logger
	onRefresh    func(error)

	mu   sync.RWMutex
	cred models.Credential

	group singleflight.Group
}

type CredentialsParams struct {
	Config Config
	Clock  clock.Clock
	Logger logger.Logger
	// OnRefresh is called after every refresh attempt with its result.
	OnRefresh func(error)
}

// NewCredentials seeds the holder from config. The seeded token is treated
// as already expired, so the first expiry check refreshes it.
func NewCredentials(p CredentialsParams) *Credentials {
	p.Config.Defaults()

	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}

	return &Credentials{
		clientID:     p.Config.ClientID,
		clientSecret: p.Config.ClientSecret,
		tokenURL:     p.Config.TokenURL,
		http:         p.Config.HTTPClient,
		clock:        clk,
		logger:       logger.OrNop(p.Logger),
		onRefresh:    p.OnRefresh,
		cred: models.Credential{
			AccessToken:  p.Config.AccessToken,
			RefreshToken: p.Config.RefreshToken,
			ExpiresAt:    clk.Now(),
		},
	}
}

// AccessToken returns the current bearer token, expired or not.
func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred.AccessToken
}

// Snapshot returns a copy of the current credential.
func (c *Credentials) Snapshot() models.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// Expired reports whether now is past the credential expiry.
func (c *Credentials) Expired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred.ExpiredAt(c.clock.Now())
}

// Invalidate forces the next expiry check to refresh.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred.ExpiresAt = time.Time{}
}

// EnsureFresh refreshes the credential only when it is expired. It reports
// whether a refresh was attempted.
func (c *Credentials) EnsureFresh(ctx context.Context) (bool, error) {
	if !c.Expired() {
		return false, nil
	}
	return true, c.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token. Without a
// refresh token it falls back to the client credentials grant. On failure
// the previous credential is kept unchanged.
func (c *Credentials) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	return err
}

func (c *Credentials) refresh(ctx context.Context) error {
	if c.clientID == "" || c.clientSecret == "" {
		return errors.New("twitch: missing client id/secret for token refresh")
	}

	current := c.Snapshot()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	var (
		tok *oauth2.Token
		err error
	)
	if current.RefreshToken != "" {
		cfg := &oauth2.Config{
			ClientID:     c.clientID,
			ClientSecret: c.clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  c.tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tok, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	} else {
		cfg := &clientcredentials.Config{
			ClientID:     c.clientID,
			ClientSecret: c.clientSecret,
			TokenURL:     c.tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err = cfg.Token(ctx)
	}
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return &UpstreamError{Op: "refresh token", StatusCode: re.Response.StatusCode, Body: string(re.Body)}
		}
		return fmt.Errorf("twitch: refresh token: %w", err)
	}
	if tok.AccessToken == "" {
		return errors.New("twitch: empty access token in refresh response")
	}

	// oauth2 stamps Expiry with the wall clock; rebase the lifetime onto
	// our clock so expiry checks stay consistent with it.
	lifetime := defaultTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}

	next := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: current.RefreshToken,
		ExpiresAt:    c.clock.Now().Add(lifetime),
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}

	c.mu.Lock()
	c.cred = next
	c.mu.Unlock()

	c.logger.InfoW("twitch token refreshed", "expires_at", next.ExpiresAt.Format(time.RFC3339))
	return nil
}

// RunRefreshLoop checks the credential every interval until ctx is done.
// It never refreshes a token that has not expired.
func (c *Credentials) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.EnsureFresh(ctx); err != nil {
				c.logger.WarnW("scheduled token refresh failed", "error", err)
			}
		}
	}
}
