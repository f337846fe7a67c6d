package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/notify"
	"github.com/tnicklin/grassy/poller"
)

var (
	_ Discord            = (*DefaultDiscord)(nil)
	_ notify.Sender      = (*DefaultDiscord)(nil)
	_ poller.GuildSource = (*DefaultDiscord)(nil)
)

type DefaultDiscord struct {
	session              *discordgo.Session
	guildID              string
	commands             *Commands
	logger               logger.Logger
	commandTimeout       time.Duration
	removeCommandsOnStop bool

	mu             sync.Mutex
	removeHandlers []func()
	registered     []*discordgo.ApplicationCommand
}

type Params struct {
	Config   Config
	Session  *discordgo.Session
	Store    ConfigStore
	Resolver CategoryResolver
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

func New(p Params) (*DefaultDiscord, error) {
	cfg := p.Config
	cfg.Defaults()

	session := p.Session
	if session == nil {
		if cfg.Token == "" {
			return nil, errors.New("discord: token is required")
		}
		s, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		session = s
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	log := logger.OrNop(p.Logger)

	return &DefaultDiscord{
		session: session,
		guildID: cfg.GuildID,
		commands: NewCommands(CommandsParams{
			Store:     p.Store,
			Resolver:  p.Resolver,
			Directory: NewStateDirectory(session.State),
			Logger:    log,
			Metrics:   p.Metrics,
		}),
		logger:               log,
		commandTimeout:       cfg.CommandTimeout,
		removeCommandsOnStop: cfg.RemoveCommandsOnStop,
	}, nil
}

// Start installs the handlers and opens the gateway connection. Commands
// are registered once the session is ready.
func (c *DefaultDiscord) Start(ctx context.Context) error {
	c.mu.Lock()
	c.removeHandlers = append(c.removeHandlers,
		c.session.AddHandler(c.handleReady),
		c.session.AddHandler(c.handleInteraction),
	)
	c.mu.Unlock()

	if err := c.session.Open(); err != nil {
		c.removeAllHandlers()
		return fmt.Errorf("open discord connection: %w", err)
	}
	return nil
}

func (c *DefaultDiscord) Stop() error {
	c.removeAllHandlers()

	var errs []error
	if c.removeCommandsOnStop {
		c.mu.Lock()
		registered := c.registered
		c.registered = nil
		c.mu.Unlock()

		for _, cmd := range registered {
			if err := c.session.ApplicationCommandDelete(cmd.ApplicationID, c.guildID, cmd.ID); err != nil {
				errs = append(errs, fmt.Errorf("delete command %s: %w", cmd.Name, err))
			}
		}
	}
	if err := c.session.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *DefaultDiscord) removeAllHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, remove := range c.removeHandlers {
		remove()
	}
	c.removeHandlers = nil
}

func (c *DefaultDiscord) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	c.logger.InfoW("discord session ready",
		"user", r.User.Username,
		"user_id", r.User.ID,
		"guilds", len(r.Guilds),
		"discordgo_version", discordgo.VERSION,
		"go_version", runtime.Version(),
	)

	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, c.guildID, CommandDefinitions())
	if err != nil {
		c.logger.ErrorW("failed to register slash commands", "guild_id", c.guildID, "error", err)
		return
	}

	c.mu.Lock()
	c.registered = cmds
	c.mu.Unlock()
	c.logger.InfoW("slash commands registered", "count", len(cmds), "guild_id", c.guildID)
}

// Send posts a notification message to a channel.
func (c *DefaultDiscord) Send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	if c.session == nil {
		return errors.New("discord session is nil")
	}
	_, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	return err
}

// Guilds returns the guilds in the session state.
func (c *DefaultDiscord) Guilds() []string {
	return stateGuildIDs(c.session.State)
}

func stateGuildIDs(state *discordgo.State) []string {
	if state == nil {
		return nil
	}
	state.RLock()
	defer state.RUnlock()

	ids := make([]string, 0, len(state.Guilds))
	for _, g := range state.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

// StateDirectory resolves role and channel names from the session cache.
type StateDirectory struct {
	state *discordgo.State
}

var _ Directory = (*StateDirectory)(nil)

func NewStateDirectory(state *discordgo.State) *StateDirectory {
	return &StateDirectory{state: state}
}

func (d *StateDirectory) RoleName(guildID, roleID string) (string, bool) {
	if d.state == nil {
		return "", false
	}
	role, err := d.state.Role(guildID, roleID)
	if err != nil || role == nil {
		return "", false
	}
	return role.Name, true
}

func (d *StateDirectory) ChannelName(_, channelID string) (string, bool) {
	if d.state == nil {
		return "", false
	}
	ch, err := d.state.Channel(channelID)
	if err != nil || ch == nil {
		return "", false
	}
	return ch.Name, true
}
