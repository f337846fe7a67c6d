package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/models"
	"github.com/tnicklin/grassy/timeutil"
	"golang.org/x/time/rate"
)

var _ Client = (*DefaultClient)(nil)

// Client is the subset of Helix the notifier needs.
type Client interface {
	ResolveCategory(ctx context.Context, name string) (string, error)
	CategoryName(ctx context.Context, id string) (string, error)
	ActiveBroadcasts(ctx context.Context, categoryID string) ([]models.Broadcast, error)
	BroadcasterAvatar(ctx context.Context, broadcasterID string) (string, error)
}

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	AccessToken() string
	// Invalidate marks the current token as expired so the next expiry
	// check refreshes it.
	Invalidate()
}

// DefaultClient is the Helix REST client.
type DefaultClient struct {
	baseURL   string
	clientID  string
	userAgent string
	pageSize  int
	maxPages  int
	http      *http.Client
	tokens    TokenProvider
	limiter   *rate.Limiter
	logger    logger.Logger
}

type Params struct {
	Config Config
	Tokens TokenProvider
	Logger logger.Logger
}

// New creates a new Helix client from the given config.
func New(p Params) *DefaultClient {
	p.Config.Defaults()

	return &DefaultClient{
		baseURL:   strings.TrimRight(p.Config.BaseURL, "/"),
		clientID:  p.Config.ClientID,
		userAgent: p.Config.UserAgent,
		pageSize:  p.Config.PageSize,
		maxPages:  p.Config.MaxPages,
		http:      p.Config.HTTPClient,
		tokens:    p.Tokens,
		limiter:   rate.NewLimiter(rate.Limit(p.Config.RequestsPerSecond), p.Config.Burst),
		logger:    logger.OrNop(p.Logger),
	}
}

// ResolveCategory looks up a category (game) id by its exact name.
func (c *DefaultClient) ResolveCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNotFound
	}

	var payload gamesResponse
	if err := c.get(ctx, "get games", "/games", url.Values{"name": {name}}, &payload); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	return payload.Data[0].ID, nil
}

// CategoryName looks up a category name by id.
func (c *DefaultClient) CategoryName(ctx context.Context, id string) (string, error) {
	var payload gamesResponse
	if err := c.get(ctx, "get games", "/games", url.Values{"id": {id}}, &payload); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", fmt.Errorf("category id %s: %w", id, ErrNotFound)
	}
	return payload.Data[0].Name, nil
}

// ActiveBroadcasts lists live streams in a category, following the
// pagination cursor for at most maxPages pages.
func (c *DefaultClient) ActiveBroadcasts(ctx context.Context, categoryID string) ([]models.Broadcast, error) {
	var (
		out    []models.Broadcast
		seen   = map[string]struct{}{}
		cursor string
	)

	for page := 0; page < c.maxPages; page++ {
		query := url.Values{
			"game_id": {categoryID},
			"type":    {"live"},
			"first":   {strconv.Itoa(c.pageSize)},
		}
		if cursor != "" {
			query.Set("after", cursor)
		}

		var payload streamsResponse
		if err := c.get(ctx, "get streams", "/streams", query, &payload); err != nil {
			return nil, err
		}

		for _, s := range payload.Data {
			// Pages can shift while a listing is walked.
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s.toModel(c.logger))
		}

		cursor = payload.Pagination.Cursor
		if cursor == "" || len(payload.Data) == 0 {
			break
		}
	}

	return out, nil
}

// BroadcasterAvatar returns the profile image URL of a broadcaster.
func (c *DefaultClient) BroadcasterAvatar(ctx context.Context, broadcasterID string) (string, error) {
	var payload usersResponse
	if err := c.get(ctx, "get users", "/users", url.Values{"id": {broadcasterID}}, &payload); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 || payload.Data[0].ProfileImageURL == "" {
		return "", fmt.Errorf("broadcaster %s avatar: %w", broadcasterID, ErrNotFound)
	}
	return payload.Data[0].ProfileImageURL, nil
}

func (c *DefaultClient) get(ctx context.Context, op, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	if c.tokens != nil {
		req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			c.tokens.Invalidate()
		}
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("twitch: %s: decode: %w", op, err)
	}
	return nil
}

type gamesResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		BoxArtURL string `json:"box_art_url"`
	} `json:"data"`
}

type usersResponse struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

type streamsResponse struct {
	Data       []stream `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

type stream struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserLogin    string `json:"user_login"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	GameName     string `json:"game_name"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	Language     string `json:"language"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (s stream) toModel(log logger.Logger) models.Broadcast {
	b := models.Broadcast{
		ID:                   s.ID,
		BroadcasterID:        s.UserID,
		BroadcasterLogin:     s.UserLogin,
		BroadcasterName:      s.UserName,
		CategoryID:           s.GameID,
		CategoryName:         s.GameName,
		Title:                s.Title,
		ViewerCount:          s.ViewerCount,
		ThumbnailURLTemplate: s.ThumbnailURL,
		Language:             s.Language,
	}
	if started, err := timeutil.ParseRFC3339(s.StartedAt); err == nil {
		b.StartedAt = started
	} else {
		log.WarnW("unparseable stream start time", "stream_id", s.ID, "started_at", s.StartedAt)
	}
	return b
}
