package notify

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/tnicklin/grassy/models"
	"github.com/tnicklin/grassy/timeutil"
)

const (
	colorPurple = 0x9b59b6
	footerText  = "Powered by Twitch API"

	previewWidth  = "1920"
	previewHeight = "1080"
)

// BoxArtURL returns the small box art image for a category.
func BoxArtURL(categoryID string) string {
	return fmt.Sprintf("https://static-cdn.jtvnw.net/ttv-boxart/%s_IGDB-90x120.jpg", categoryID)
}

// MentionContent returns the message content that pings roleID, or an empty
// string when no role is configured.
func MentionContent(roleID string) string {
	if roleID == "" {
		return ""
	}
	return fmt.Sprintf("<@&%s>", roleID)
}

// BuildMessage renders the notification for one broadcast.
func BuildMessage(b models.Broadcast, categoryName, roleID, avatarURL string, now time.Time) *discordgo.MessageSend {
	if b.CategoryName != "" {
		categoryName = b.CategoryName
	}
	link := b.ChannelURL()

	language := b.Language
	if language == "" {
		language = "Unknown"
	}

	started := "Unknown"
	uptime := "0h 0m"
	if !b.StartedAt.IsZero() {
		started = fmt.Sprintf("%s (%s)",
			timeutil.FormatDisplay(b.StartedAt),
			timeutil.DiscordTimestamp(b.StartedAt, "f"),
		)
		uptime = timeutil.Uptime(b.StartedAt, now)
	}

	embed := &discordgo.MessageEmbed{
		Title:       b.Title,
		URL:         link,
		Description: fmt.Sprintf("%s is streaming %s with %d viewers.\n[Watch](%s)", b.BroadcasterName, categoryName, b.ViewerCount, link),
		Color:       colorPurple,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: uptime, Inline: true},
			{Name: "Language", Value: language, Inline: true},
			{Name: "Started at", Value: started, Inline: true},
		},
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: BoxArtURL(b.CategoryID)},
		Author: &discordgo.MessageEmbedAuthor{
			Name:    b.BroadcasterName,
			URL:     link,
			IconURL: avatarURL,
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footerText},
	}
	if preview := b.ThumbnailURL(previewWidth, previewHeight); preview != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: preview}
	}

	msg := &discordgo.MessageSend{
		Content: MentionContent(roleID),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
	if roleID != "" {
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: []string{roleID}}
	}
	return msg
}
