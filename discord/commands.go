package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/models"
	"github.com/tnicklin/grassy/twitch"
)

const (
	commandGroup = "twitch"

	cmdSetup         = "setup"
	cmdViewSettings  = "view-settings"
	cmdRemoveSetting = "remove-setting"
	cmdUpdateSetting = "update-setting"
	cmdToggle        = "toggle-notifications"

	optGame        = "game"
	optChannel     = "channel"
	optRole        = "role"
	optActive      = "notifications_active"
	settingsColor  = 0x3498db
	maxEmbedFields = 25
)

const (
	msgGameNotFound    = "Could not find game ID for the specified name."
	msgNoSettings      = "No stream settings found."
	msgSettingNotFound = "Stream setting for the specified game not found."
	msgNoChanges       = "No changes were made."
)

var manageServer = int64(discordgo.PermissionManageServer)

// CommandDefinitions returns the /twitch command group.
func CommandDefinitions() []*discordgo.ApplicationCommand {
	dm := false
	gameOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optGame,
			Description: desc,
			Required:    true,
		}
	}
	textChannels := []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}

	return []*discordgo.ApplicationCommand{{
		Name:                     commandGroup,
		Description:              "Configure your Twitch settings.",
		DefaultMemberPermissions: &manageServer,
		DMPermission:             &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        cmdSetup,
				Description: "Set up streams with role, channel, and game.",
				Options: []*discordgo.ApplicationCommandOption{
					gameOption("Enter the Twitch game name or ID"),
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         optChannel,
						Description:  "Select the channel for streams",
						ChannelTypes: textChannels,
						Required:     true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        optRole,
						Description: "Choose the role to be pinged (optional)",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        cmdViewSettings,
				Description: "View the current stream settings.",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        cmdRemoveSetting,
				Description: "Remove a stream setting.",
				Options: []*discordgo.ApplicationCommandOption{
					gameOption("Enter the Twitch game name or ID to remove"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        cmdUpdateSetting,
				Description: "Update the role or channel for a specific game.",
				Options: []*discordgo.ApplicationCommandOption{
					gameOption("Enter the Twitch game name or ID"),
					{
						Type:        discordgo.ApplicationCommandOptionRole,
						Name:        optRole,
						Description: "New role to be pinged (optional)",
					},
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         optChannel,
						Description:  "New channel for streams (optional)",
						ChannelTypes: textChannels,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        cmdToggle,
				Description: "Turn Twitch notifications on or off.",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        optActive,
					Description: "Set to True to receive Twitch notifications, False to disable.",
					Required:    true,
				}},
			},
		},
	}}
}

// Options are the parsed arguments of one subcommand.
type Options struct {
	Game      string
	ChannelID string
	RoleID    string
	Active    *bool
}

// Reply is what a command answers with.
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// Commands implements the /twitch subcommands on top of the config store.
type Commands struct {
	store     ConfigStore
	resolver  CategoryResolver
	directory Directory
	logger    logger.Logger
	metrics   *metrics.Metrics
}

type CommandsParams struct {
	Store     ConfigStore
	Resolver  CategoryResolver
	Directory Directory
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

func NewCommands(p CommandsParams) *Commands {
	return &Commands{
		store:     p.Store,
		resolver:  p.Resolver,
		directory: p.Directory,
		logger:    logger.OrNop(p.Logger),
		metrics:   p.Metrics,
	}
}

// Execute runs the named subcommand for a guild.
func (c *Commands) Execute(ctx context.Context, guildID, name string, opts Options) (Reply, error) {
	if c.store == nil {
		return Reply{}, errors.New("config store not configured")
	}
	c.metrics.Command(name)

	switch name {
	case cmdSetup:
		return c.Setup(ctx, guildID, opts)
	case cmdViewSettings:
		return c.ViewSettings(ctx, guildID)
	case cmdRemoveSetting:
		return c.RemoveSetting(ctx, guildID, opts.Game)
	case cmdUpdateSetting:
		return c.UpdateSetting(ctx, guildID, opts)
	case cmdToggle:
		if opts.Active == nil {
			return Reply{}, fmt.Errorf("missing %s option", optActive)
		}
		return c.ToggleNotifications(ctx, guildID, *opts.Active)
	default:
		return Reply{}, fmt.Errorf("unknown subcommand %q", name)
	}
}

// Setup stores the destination channel and optional role for a category.
func (c *Commands) Setup(ctx context.Context, guildID string, opts Options) (Reply, error) {
	categoryID, ok, err := c.resolveGame(ctx, opts.Game)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Content: msgGameNotFound}, nil
	}
	if opts.ChannelID == "" {
		return Reply{}, fmt.Errorf("missing %s option", optChannel)
	}

	setting := models.CategorySetting{ChannelID: opts.ChannelID, RoleID: opts.RoleID}
	if err := c.store.Set(ctx, guildID, categoryID, setting); err != nil {
		return Reply{}, fmt.Errorf("save stream setting: %w", err)
	}

	c.logger.InfoW("stream setting created",
		"guild_id", guildID,
		"category_id", categoryID,
		"channel_id", opts.ChannelID,
		"role_id", opts.RoleID,
	)
	return Reply{Content: fmt.Sprintf("Stream setup complete. Role: %s, Channel: %s, Game ID: %s",
		c.roleName(guildID, opts.RoleID),
		c.channelName(guildID, opts.ChannelID),
		categoryID,
	)}, nil
}

// ViewSettings renders the guild's switch and category settings.
func (c *Commands) ViewSettings(ctx context.Context, guildID string) (Reply, error) {
	cfg, found, err := c.store.Get(ctx, guildID)
	if err != nil {
		return Reply{}, fmt.Errorf("load stream settings: %w", err)
	}
	if !found {
		return Reply{Content: msgNoSettings}, nil
	}

	active := "No"
	if cfg.NotificationsActive {
		active = "Yes"
	}
	embed := &discordgo.MessageEmbed{
		Title: "Current Stream Settings",
		Color: settingsColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Notifications Active", Value: active, Inline: true},
		},
	}

	ids := cfg.CategoryIDs()
	for i, id := range ids {
		if len(embed.Fields) == maxEmbedFields {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("and %d more", len(ids)-i)}
			break
		}
		setting := cfg.Categories[id]
		channel, ok := c.lookupChannel(guildID, setting.ChannelID)
		if !ok {
			channel = "Unknown"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Game: %s (ID: %s)", c.categoryName(ctx, id), id),
			Value: fmt.Sprintf("Role: %s\nChannel: %s", c.roleName(guildID, setting.RoleID), channel),
		})
	}
	return Reply{Embed: embed}, nil
}

// RemoveSetting deletes one category setting.
func (c *Commands) RemoveSetting(ctx context.Context, guildID, game string) (Reply, error) {
	categoryID, ok, err := c.resolveGame(ctx, game)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Content: msgGameNotFound}, nil
	}

	removed, err := c.store.Remove(ctx, guildID, categoryID)
	if err != nil {
		return Reply{}, fmt.Errorf("remove stream setting: %w", err)
	}
	if !removed {
		return Reply{Content: msgSettingNotFound}, nil
	}

	c.logger.InfoW("stream setting removed", "guild_id", guildID, "category_id", categoryID)
	return Reply{Content: fmt.Sprintf("Removed stream setting for Game ID: %s", categoryID)}, nil
}

// UpdateSetting changes the role and/or channel of an existing setting.
func (c *Commands) UpdateSetting(ctx context.Context, guildID string, opts Options) (Reply, error) {
	categoryID, ok, err := c.resolveGame(ctx, opts.Game)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Content: msgGameNotFound}, nil
	}

	cfg, found, err := c.store.Get(ctx, guildID)
	if err != nil {
		return Reply{}, fmt.Errorf("load stream settings: %w", err)
	}
	setting, exists := cfg.Categories[categoryID]
	if !found || !exists {
		return Reply{Content: msgSettingNotFound}, nil
	}

	if opts.RoleID == "" && opts.ChannelID == "" {
		return Reply{Content: msgNoChanges}, nil
	}
	if opts.RoleID != "" {
		setting.RoleID = opts.RoleID
	}
	if opts.ChannelID != "" {
		setting.ChannelID = opts.ChannelID
	}

	if err := c.store.Set(ctx, guildID, categoryID, setting); err != nil {
		return Reply{}, fmt.Errorf("save stream setting: %w", err)
	}

	c.logger.InfoW("stream setting updated",
		"guild_id", guildID,
		"category_id", categoryID,
		"channel_id", setting.ChannelID,
		"role_id", setting.RoleID,
	)
	return Reply{Content: fmt.Sprintf("Stream setting updated for Game ID: %s. Role and/or channel has been changed.", categoryID)}, nil
}

// ToggleNotifications sets the guild's notification switch.
func (c *Commands) ToggleNotifications(ctx context.Context, guildID string, active bool) (Reply, error) {
	if err := c.store.SetNotificationsActive(ctx, guildID, active); err != nil {
		return Reply{}, fmt.Errorf("save notification switch: %w", err)
	}

	status := "inactive"
	if active {
		status = "active"
	}
	c.logger.InfoW("stream notifications toggled", "guild_id", guildID, "active", active)
	return Reply{Content: fmt.Sprintf("Stream notifications are now %s.", status)}, nil
}

// resolveGame treats an all-digit argument as a category id and looks up
// anything else by name. ok is false when the name matched nothing.
func (c *Commands) resolveGame(ctx context.Context, game string) (string, bool, error) {
	game = strings.TrimSpace(game)
	if game == "" {
		return "", false, nil
	}
	if isDigits(game) {
		return game, true, nil
	}
	if c.resolver == nil {
		return "", false, errors.New("twitch client not configured")
	}

	id, err := c.resolver.ResolveCategory(ctx, game)
	if errors.Is(err, twitch.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		c.logger.WarnW("category lookup failed", "game", game, "error", err)
		return "", false, fmt.Errorf("look up game %q: %w", game, err)
	}
	return id, true, nil
}

func (c *Commands) categoryName(ctx context.Context, id string) string {
	if c.resolver == nil {
		return "Unknown"
	}
	name, err := c.resolver.CategoryName(ctx, id)
	if err != nil {
		c.logger.DebugW("category name lookup failed", "category_id", id, "error", err)
		return "Unknown"
	}
	return name
}

func (c *Commands) roleName(guildID, roleID string) string {
	if roleID == "" {
		return "None"
	}
	if c.directory != nil {
		if name, ok := c.directory.RoleName(guildID, roleID); ok {
			return name
		}
	}
	return "<@&" + roleID + ">"
}

func (c *Commands) channelName(guildID, channelID string) string {
	if name, ok := c.lookupChannel(guildID, channelID); ok {
		return name
	}
	return "<#" + channelID + ">"
}

func (c *Commands) lookupChannel(guildID, channelID string) (string, bool) {
	if c.directory == nil || channelID == "" {
		return "", false
	}
	return c.directory.ChannelName(guildID, channelID)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
