package models

import (
	"sort"
	"strings"
	"time"
)

// CategorySetting is where notifications for one Twitch category go in a guild.
type CategorySetting struct {
	ChannelID string `json:"stream_channel_id" yaml:"stream_channel_id"`
	RoleID    string `json:"role_id,omitempty" yaml:"role_id"`
}

// HasMention reports whether a role should be pinged with each notification.
func (s CategorySetting) HasMention() bool {
	return strings.TrimSpace(s.RoleID) != ""
}

// GuildStreamConfig is the stream notification setup for a single guild.
type GuildStreamConfig struct {
	GuildID             string
	NotificationsActive bool
	Categories          map[string]CategorySetting
}

// NewGuildStreamConfig returns an empty, active config for guildID.
func NewGuildStreamConfig(guildID string) GuildStreamConfig {
	return GuildStreamConfig{
		GuildID:             guildID,
		NotificationsActive: true,
		Categories:          map[string]CategorySetting{},
	}
}

// CategoryIDs returns the configured category ids in a stable order.
func (g GuildStreamConfig) CategoryIDs() []string {
	ids := make([]string, 0, len(g.Categories))
	for id := range g.Categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast is a live stream as reported by the provider.
type Broadcast struct {
	ID                   string
	BroadcasterID        string
	BroadcasterLogin     string
	BroadcasterName      string
	CategoryID           string
	CategoryName         string
	Title                string
	ViewerCount          int
	StartedAt            time.Time
	ThumbnailURLTemplate string
	Language             string
}

// ChannelURL is the public watch link for the broadcaster.
func (b Broadcast) ChannelURL() string {
	login := b.BroadcasterLogin
	if login == "" {
		login = strings.ToLower(b.BroadcasterName)
	}
	return "https://www.twitch.tv/" + login
}

// ThumbnailURL fills the provider's {width}x{height} template.
func (b Broadcast) ThumbnailURL(width, height string) string {
	if b.ThumbnailURLTemplate == "" {
		return ""
	}
	r := strings.NewReplacer("{width}", width, "{height}", height)
	return r.Replace(b.ThumbnailURLTemplate)
}

// Credential is the bearer token used for provider calls.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiredAt reports whether the credential is expired at now.
// A credential is still valid at exactly ExpiresAt.
func (c Credential) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
