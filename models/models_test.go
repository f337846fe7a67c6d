package models

import (
	"testing"
	"time"
)

func TestBroadcastThumbnailURL(t *testing.T) {
	b := Broadcast{ThumbnailURLTemplate: "https://static-cdn.jtvnw.net/previews-ttv/live_user_foo-{width}x{height}.jpg"}
	got := b.ThumbnailURL("1920", "1080")
	want := "https://static-cdn.jtvnw.net/previews-ttv/live_user_foo-1920x1080.jpg"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	if got := (Broadcast{}).ThumbnailURL("1920", "1080"); got != "" {
		t.Fatalf("expected empty thumbnail, got %s", got)
	}
}

func TestBroadcastChannelURLFallsBackToName(t *testing.T) {
	b := Broadcast{BroadcasterName: "SomeStreamer"}
	if got := b.ChannelURL(); got != "https://www.twitch.tv/somestreamer" {
		t.Fatalf("unexpected channel url %s", got)
	}
	b.BroadcasterLogin = "some_login"
	if got := b.ChannelURL(); got != "https://www.twitch.tv/some_login" {
		t.Fatalf("unexpected channel url %s", got)
	}
}

func TestCredentialExpiredAt(t *testing.T) {
	expiry := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Credential{ExpiresAt: expiry}

	if c.ExpiredAt(expiry.Add(-time.Second)) {
		t.Fatal("expected credential valid before expiry")
	}
	if c.ExpiredAt(expiry) {
		t.Fatal("expected credential valid at exactly expiry")
	}
	if !c.ExpiredAt(expiry.Add(time.Nanosecond)) {
		t.Fatal("expected credential expired after expiry")
	}
}

func TestGuildStreamConfigCategoryIDsSorted(t *testing.T) {
	g := NewGuildStreamConfig("1")
	g.Categories["30"] = CategorySetting{ChannelID: "a"}
	g.Categories["10"] = CategorySetting{ChannelID: "b"}
	g.Categories["20"] = CategorySetting{ChannelID: "c"}

	ids := g.CategoryIDs()
	if len(ids) != 3 || ids[0] != "10" || ids[1] != "20" || ids[2] != "30" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
	if !g.NotificationsActive {
		t.Fatal("expected new config to be active")
	}
}
