package poller

import (
	"context"

	"github.com/tnicklin/grassy/models"
)

// Poller defines the interface for the stream poll loop.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
}

// CredentialChecker refreshes the provider credential when it has expired.
type CredentialChecker interface {
	EnsureFresh(ctx context.Context) (bool, error)
}

// GuildSource lists the guilds the bot is currently a member of.
type GuildSource interface {
	Guilds() []string
}

// ConfigReader reads one guild's stream configuration.
type ConfigReader interface {
	Get(ctx context.Context, guildID string) (models.GuildStreamConfig, bool, error)
}

// StreamSource lists live broadcasts for a category.
type StreamSource interface {
	ActiveBroadcasts(ctx context.Context, categoryID string) ([]models.Broadcast, error)
	CategoryName(ctx context.Context, id string) (string, error)
}
