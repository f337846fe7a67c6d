package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	msgGuildOnly  = "This command can only be used in a server."
	msgUnexpected = "An unexpected error occurred while processing the command."

	// Discord error code for an interaction webhook that does not exist yet.
	codeUnknownWebhook = 10015
)

func (c *DefaultDiscord) handleInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := ic.ApplicationCommandData()
	if data.Name != commandGroup || len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	if ic.GuildID == "" {
		c.respond(s, ic, Reply{Content: msgGuildOnly})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorW("panic in slash command", "command", sub.Name, "panic", fmt.Sprint(rec))
			c.followup(s, ic, Reply{Content: msgUnexpected})
		}
	}()

	if err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		c.logger.WarnW("failed to defer interaction", "command", sub.Name, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.commandTimeout)
	defer cancel()

	c.logger.InfoW("slash command",
		"command", sub.Name,
		"guild_id", ic.GuildID,
		"user_id", interactionUserID(ic),
	)

	reply, err := c.commands.Execute(ctx, ic.GuildID, sub.Name, parseOptions(sub.Options))
	if err != nil {
		c.logger.ErrorW("command failed", "command", sub.Name, "guild_id", ic.GuildID, "error", err)
		reply = Reply{Content: fmt.Sprintf("Error: %v", err)}
	}
	c.followup(s, ic, reply)
}

func (c *DefaultDiscord) followup(s *discordgo.Session, ic *discordgo.InteractionCreate, reply Reply) {
	params := &discordgo.WebhookParams{
		Content:         reply.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if reply.Embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}

	_, err := s.FollowupMessageCreate(ic.Interaction, true, params)
	if err == nil {
		return
	}

	// The deferral never reached Discord; answer directly instead.
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == codeUnknownWebhook {
		c.respond(s, ic, reply)
		return
	}
	c.logger.ErrorW("failed to send command reply", "error", err)
}

func (c *DefaultDiscord) respond(s *discordgo.Session, ic *discordgo.InteractionCreate, reply Reply) {
	resp := &discordgo.InteractionResponseData{
		Content:         reply.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if reply.Embed != nil {
		resp.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}
	if err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	}); err != nil {
		c.logger.ErrorW("failed to respond to interaction", "error", err)
	}
}

// parseOptions reads subcommand options by name. Values of an unexpected
// type are ignored.
func parseOptions(options []*discordgo.ApplicationCommandInteractionDataOption) Options {
	var out Options
	for _, opt := range options {
		if opt == nil {
			continue
		}
		switch {
		case opt.Name == optGame && opt.Type == discordgo.ApplicationCommandOptionString:
			out.Game = opt.StringValue()
		case opt.Name == optChannel && opt.Type == discordgo.ApplicationCommandOptionChannel:
			out.ChannelID = opt.ChannelValue(nil).ID
		case opt.Name == optRole && opt.Type == discordgo.ApplicationCommandOptionRole:
			out.RoleID = opt.RoleValue(nil, "").ID
		case opt.Name == optActive && opt.Type == discordgo.ApplicationCommandOptionBoolean:
			v := opt.BoolValue()
			out.Active = &v
		}
	}
	return out
}

func interactionUserID(ic *discordgo.InteractionCreate) string {
	switch {
	case ic.Member != nil && ic.Member.User != nil:
		return ic.Member.User.ID
	case ic.User != nil:
		return ic.User.ID
	default:
		return ""
	}
}
