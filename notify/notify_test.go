package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnicklin/grassy/models"
)

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	fail     error
	attempts int
}

func (f *fakeSender) Send(_ context.Context, channelID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg})
	return nil
}

type fakeAvatars map[string]string

func (f fakeAvatars) BroadcasterAvatar(_ context.Context, id string) (string, error) {
	if url, ok := f[id]; ok {
		return url, nil
	}
	return "", errors.New("not found")
}

func hollowKnightStream() models.Broadcast {
	return models.Broadcast{
		ID:                   "S1",
		BroadcasterID:        "U1",
		BroadcasterLogin:     "streamer_one",
		BroadcasterName:      "Streamer_One",
		CategoryID:           "1287238118",
		CategoryName:         "Hollow Knight",
		Title:                "no hit run",
		ViewerCount:          42,
		StartedAt:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ThumbnailURLTemplate: "https://static-cdn.jtvnw.net/previews-ttv/live_user_streamer_one-{width}x{height}.jpg",
		Language:             "en",
	}
}

func hollowKnightTarget(roleID string) Target {
	return Target{
		GuildID:    "100",
		CategoryID: "1287238118",
		Setting:    models.CategorySetting{ChannelID: "200", RoleID: roleID},
	}
}

func TestDispatchSendsOncePerBroadcast(t *testing.T) {
	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 2, 30, 0, 0, time.UTC))
	sender := &fakeSender{}
	d := NewDispatcher(Params{
		Sender:  sender,
		Avatars: fakeAvatars{"U1": "https://example.com/u1.png"},
		Clock:   clk,
	})

	stream := hollowKnightStream()
	sent, err := d.Dispatch(context.Background(), hollowKnightTarget("300"), []models.Broadcast{stream})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sent, 1)

	got := sender.sent[0]
	assert.Equal(t, "200", got.channelID)
	assert.Equal(t, "<@&300>", got.msg.Content)
	require.Len(t, got.msg.Embeds, 1)

	embed := got.msg.Embeds[0]
	assert.Contains(t, embed.Description, "42")
	assert.Equal(t, "Streamer_One is streaming Hollow Knight with 42 viewers.\n[Watch](https://www.twitch.tv/streamer_one)", embed.Description)
	assert.Equal(t, "https://www.twitch.tv/streamer_one", embed.URL)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.True(t, strings.Contains(fields["Started at"], "Dec 31, 2023 7:00 PM EST"), fields["Started at"])
	assert.Contains(t, fields["Started at"], "<t:1704067200:f>")
	assert.Equal(t, "2h 30m", fields["Uptime"])
	assert.Equal(t, "en", fields["Language"])
	assert.Equal(t, "https://example.com/u1.png", embed.Author.IconURL)
	assert.Equal(t, "https://static-cdn.jtvnw.net/ttv-boxart/1287238118_IGDB-90x120.jpg", embed.Thumbnail.URL)
	assert.Equal(t, "https://static-cdn.jtvnw.net/previews-ttv/live_user_streamer_one-1920x1080.jpg", embed.Image.URL)
	assert.Equal(t, "Powered by Twitch API", embed.Footer.Text)

	// Same broadcast on the next tick is not announced again.
	clk.Advance(2 * time.Second)
	sent, err = d.Dispatch(context.Background(), hollowKnightTarget("300"), []models.Broadcast{stream})
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Len(t, sender.sent, 1)
}

func TestDispatchNoBroadcasts(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(Params{Sender: sender, Clock: clockwork.NewFakeClock()})

	sent, err := d.Dispatch(context.Background(), hollowKnightTarget(""), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, sender.sent)
}

func TestDispatchWithoutRoleHasNoMention(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(Params{Sender: sender, Clock: clockwork.NewFakeClock()})

	_, err := d.Dispatch(context.Background(), hollowKnightTarget(""), []models.Broadcast{hollowKnightStream()})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].msg.Content)
	assert.Nil(t, sender.sent[0].msg.AllowedMentions)
	// Missing avatar is tolerated.
	assert.Empty(t, sender.sent[0].msg.Embeds[0].Author.IconURL)
}

func TestDispatchFailedSendIsRetried(t *testing.T) {
	sender := &fakeSender{fail: errors.New("missing access")}
	d := NewDispatcher(Params{Sender: sender, Clock: clockwork.NewFakeClock()})
	streams := []models.Broadcast{hollowKnightStream()}

	sent, err := d.Dispatch(context.Background(), hollowKnightTarget(""), streams)
	require.Error(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, d.Announced().Len())

	sender.fail = nil
	sent, err = d.Dispatch(context.Background(), hollowKnightTarget(""), streams)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "rejected"},
	}
}

func TestDispatchRejectedChannelIsNotRetried(t *testing.T) {
	sender := &fakeSender{fail: fmt.Errorf("send: %w", restError(http.StatusForbidden, 50001))}
	d := NewDispatcher(Params{Sender: sender, Clock: clockwork.NewFakeClock()})

	second := hollowKnightStream()
	second.ID = "S2"
	streams := []models.Broadcast{hollowKnightStream(), second}

	for i := 0; i < 5; i++ {
		sent, err := d.Dispatch(context.Background(), hollowKnightTarget(""), streams)
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
	}

	// One request reaches Discord; the second broadcast is skipped once the
	// channel refused the first.
	assert.Equal(t, 1, sender.attempts)
	assert.Equal(t, 2, d.Announced().Len())
}

func TestRejected(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "missing access", err: restError(http.StatusForbidden, 50001), want: true},
		{name: "unknown channel", err: restError(http.StatusNotFound, 10003), want: true},
		{name: "wrapped", err: fmt.Errorf("send: %w", restError(http.StatusForbidden, 50013)), want: true},
		{name: "server error", err: restError(http.StatusBadGateway, 0), want: false},
		{name: "rate limited", err: restError(http.StatusTooManyRequests, 0), want: false},
		{name: "plain error", err: errors.New("connection reset"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Rejected(tc.err))
		})
	}
}

func TestDispatchScopesAreIndependent(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(Params{Sender: sender, Clock: clockwork.NewFakeClock()})
	streams := []models.Broadcast{hollowKnightStream()}

	_, err := d.Dispatch(context.Background(), hollowKnightTarget(""), streams)
	require.NoError(t, err)

	other := hollowKnightTarget("")
	other.GuildID = "101"
	other.Setting.ChannelID = "201"
	_, err = d.Dispatch(context.Background(), other, streams)
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "201", sender.sent[1].channelID)
}

func TestDispatchNeedsSender(t *testing.T) {
	d := NewDispatcher(Params{})
	_, err := d.Dispatch(context.Background(), hollowKnightTarget(""), []models.Broadcast{hollowKnightStream()})
	assert.Error(t, err)
}

func TestAnnouncedSweep(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAnnounced()
	scope := Scope{GuildID: "100", CategoryID: "1"}

	a.Mark(scope, "S1", start)
	a.Mark(scope, "S2", start)
	assert.Equal(t, 2, a.Len())

	// S1 is still live and keeps being seen.
	assert.True(t, a.Seen(scope, "S1", start.Add(10*time.Minute)))

	removed := a.Sweep(start.Add(16*time.Minute), 15*time.Minute, []Scope{scope})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, a.Len())
	assert.True(t, a.Seen(scope, "S1", start.Add(16*time.Minute)))
	assert.False(t, a.Seen(scope, "S2", start.Add(16*time.Minute)))

	removed = a.Sweep(start.Add(time.Hour), 15*time.Minute, []Scope{scope})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, a.Len())
}

func TestAnnouncedSweepLeavesOtherScopes(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAnnounced()
	polled := Scope{GuildID: "100", CategoryID: "1"}
	failed := Scope{GuildID: "100", CategoryID: "2"}

	a.Mark(polled, "S1", start)
	a.Mark(failed, "S2", start)

	removed := a.Sweep(start.Add(time.Hour), 15*time.Minute, []Scope{polled})
	assert.Equal(t, 1, removed)
	assert.False(t, a.Seen(polled, "S1", start.Add(time.Hour)))
	assert.True(t, a.Seen(failed, "S2", start.Add(time.Hour)))

	assert.Equal(t, 0, a.Sweep(start.Add(2*time.Hour), 15*time.Minute, nil))
	assert.Equal(t, 1, a.Len())
}

func TestMentionContent(t *testing.T) {
	assert.Equal(t, "", MentionContent(""))
	assert.Equal(t, "<@&300>", MentionContent("300"))
}

func TestBuildMessageFallbacks(t *testing.T) {
	b := models.Broadcast{ID: "S9", BroadcasterName: "Quiet", CategoryID: "7", ViewerCount: 0}
	msg := BuildMessage(b, "Chess", "", "", time.Now())

	embed := msg.Embeds[0]
	assert.Equal(t, "Quiet is streaming Chess with 0 viewers.\n[Watch](https://www.twitch.tv/quiet)", embed.Description)
	assert.Nil(t, embed.Image)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "Unknown", fields["Language"])
	assert.Equal(t, "Unknown", fields["Started at"])
}
