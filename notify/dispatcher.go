package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/tnicklin/grassy/clock"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/models"
)

// Sender delivers a rendered message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
}

// AvatarSource looks up a broadcaster's profile image.
type AvatarSource interface {
	BroadcasterAvatar(ctx context.Context, broadcasterID string) (string, error)
}

// Target is one configured destination for a category in a guild.
type Target struct {
	GuildID      string
	CategoryID   string
	CategoryName string
	Setting      models.CategorySetting
}

func (t Target) scope() Scope {
	return Scope{GuildID: t.GuildID, CategoryID: t.CategoryID}
}

// Dispatcher posts one notification per new broadcast.
type Dispatcher struct {
	sender    Sender
	avatars   AvatarSource
	announced *Announced
	clock     clock.Clock
	logger    logger.Logger
	metrics   *metrics.Metrics
}

type Params struct {
	Sender    Sender
	Avatars   AvatarSource
	Announced *Announced
	Clock     clock.Clock
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

func NewDispatcher(p Params) *Dispatcher {
	announced := p.Announced
	if announced == nil {
		announced = NewAnnounced()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Dispatcher{
		sender:    p.Sender,
		avatars:   p.Avatars,
		announced: announced,
		clock:     clk,
		logger:    logger.OrNop(p.Logger),
		metrics:   p.Metrics,
	}
}

// Announced returns the set backing this dispatcher.
func (d *Dispatcher) Announced() *Announced { return d.announced }

// Dispatch sends a notification for every broadcast not yet announced for
// the target. A broadcast is marked once its message was delivered, or once
// Discord rejected the channel for good (see Rejected); other failures are
// left unmarked and retried on the next call. It returns the number of
// messages sent and the joined retryable send errors.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, broadcasts []models.Broadcast) (int, error) {
	if d.sender == nil {
		return 0, errors.New("notify: no sender configured")
	}

	scope := target.scope()
	var (
		sent     int
		errs     []error
		rejected error
	)
	for _, b := range broadcasts {
		if b.ID == "" {
			continue
		}
		now := d.clock.Now()
		if d.announced.Seen(scope, b.ID, now) {
			continue
		}

		// The channel already refused this round; the rest would fail the
		// same way.
		if rejected != nil {
			d.announced.Mark(scope, b.ID, now)
			d.metrics.NotificationRejected()
			continue
		}

		avatar := d.avatar(ctx, b)
		msg := BuildMessage(b, target.CategoryName, target.Setting.RoleID, avatar, now)

		err := d.sender.Send(ctx, target.Setting.ChannelID, msg)
		switch {
		case err == nil:
		case Rejected(err):
			rejected = err
			d.announced.Mark(scope, b.ID, now)
			d.metrics.NotificationRejected()
			d.logger.WarnW("discord rejected stream notification, not retrying",
				"error", err,
				"guild_id", target.GuildID,
				"category_id", target.CategoryID,
				"channel_id", target.Setting.ChannelID,
				"broadcast_id", b.ID,
			)
			continue
		default:
			d.metrics.Notification(err)
			d.logger.WarnW("failed to send stream notification",
				"error", err,
				"guild_id", target.GuildID,
				"category_id", target.CategoryID,
				"channel_id", target.Setting.ChannelID,
				"broadcast_id", b.ID,
			)
			errs = append(errs, err)
			continue
		}

		d.metrics.Notification(nil)
		d.announced.Mark(scope, b.ID, now)
		sent++
		d.logger.InfoW("stream notification sent",
			"guild_id", target.GuildID,
			"category_id", target.CategoryID,
			"broadcaster", b.BroadcasterName,
			"broadcast_id", b.ID,
		)
	}
	return sent, errors.Join(errs...)
}

// Rejected reports whether err is a Discord refusal that repeating the
// request cannot fix: a forbidden or unknown channel.
func Rejected(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	switch restErr.Response.StatusCode {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) avatar(ctx context.Context, b models.Broadcast) string {
	if d.avatars == nil || b.BroadcasterID == "" {
		return ""
	}
	url, err := d.avatars.BroadcasterAvatar(ctx, b.BroadcasterID)
	if err != nil {
		d.logger.DebugW("broadcaster avatar unavailable", "broadcaster_id", b.BroadcasterID, "error", err)
		return ""
	}
	return url
}
