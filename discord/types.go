package discord

import (
	"context"

	"github.com/tnicklin/grassy/models"
)

// Discord defines the interface for the Discord client.
type Discord interface {
	Start(ctx context.Context) error
	Stop() error
}

// ConfigStore is the part of the config store the commands use.
type ConfigStore interface {
	Get(ctx context.Context, guildID string) (models.GuildStreamConfig, bool, error)
	Set(ctx context.Context, guildID, categoryID string, setting models.CategorySetting) error
	Remove(ctx context.Context, guildID, categoryID string) (bool, error)
	SetNotificationsActive(ctx context.Context, guildID string, active bool) error
}

// CategoryResolver maps category names to ids and back.
type CategoryResolver interface {
	ResolveCategory(ctx context.Context, name string) (string, error)
	CategoryName(ctx context.Context, id string) (string, error)
}

// Directory looks up display names for guild roles and channels.
type Directory interface {
	RoleName(guildID, roleID string) (string, bool)
	ChannelName(guildID, channelID string) (string, bool)
}
