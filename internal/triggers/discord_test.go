package triggers

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

func TestContainsString(t *testing.T) {
	if !containsString([]string{"a", "b"}, "b") {
		t.Error("expected containsString to find an existing element")
	}
	if containsString([]string{"a", "b"}, "c") {
		t.Error("expected containsString to reject a missing element")
	}
	if containsString(nil, "a") {
		t.Error("expected containsString to reject against a nil slice")
	}
}

func TestStripMention(t *testing.T) {
	got := stripMention("hey <@123> do the thing", "123")
	want := "hey  do the thing"
	if got != want {
		t.Errorf("stripMention = %q, want %q", got, want)
	}

	got = stripMention("hey <@!123> do the thing", "123")
	if got != want {
		t.Errorf("stripMention (nickname form) = %q, want %q", got, want)
	}

	unrelated := "hey <@456> do the thing"
	if got := stripMention(unrelated, "123"); got != unrelated {
		t.Errorf("stripMention should leave other mentions untouched, got %q", got)
	}
}

func TestDiscordMentionsBot(t *testing.T) {
	d := &DiscordDriver{botUserID: "123"}
	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "999"}, {ID: "123"}},
	}}
	if !d.mentionsBot(msg) {
		t.Error("expected mentionsBot to find the bot's ID among mentions")
	}

	noMention := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "999"}},
	}}
	if d.mentionsBot(noMention) {
		t.Error("expected mentionsBot to return false when the bot isn't mentioned")
	}
}

func TestDiscordIsAllowedDM(t *testing.T) {
	d := &DiscordDriver{cfg: role.DiscordTrigger{}}
	msg := &discordgo.MessageCreate{Message: &discordgo.Message{Author: &discordgo.User{ID: "7"}}}
	if !d.isAllowed(true, msg) {
		t.Error("DM with no allowlist should be allowed")
	}

	d = &DiscordDriver{cfg: role.DiscordTrigger{AllowedUserIDs: []string{"1"}}}
	if d.isAllowed(true, msg) {
		t.Error("DM from a non-allowlisted user should be rejected")
	}
	msg.Author.ID = "1"
	if !d.isAllowed(true, msg) {
		t.Error("DM from an allowlisted user should be allowed")
	}

	d = &DiscordDriver{cfg: role.DiscordTrigger{AllowedRoles: []string{"mod"}}}
	if d.isAllowed(true, msg) {
		t.Error("DM with a role-only allowlist should be rejected (roles do not exist in DMs)")
	}
}

func TestDiscordIsAllowedGuildChannelRestriction(t *testing.T) {
	d := &DiscordDriver{cfg: role.DiscordTrigger{ChannelIDs: []string{"chan-1"}}}
	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    &discordgo.User{ID: "7"},
		ChannelID: "chan-2",
	}}
	if d.isAllowed(false, msg) {
		t.Error("message in a non-listed channel should be rejected")
	}

	msg.ChannelID = "chan-1"
	if !d.isAllowed(false, msg) {
		t.Error("message in a listed channel with no role/user restriction should be allowed")
	}
}

func TestDiscordIsAllowedGuildRoleMatch(t *testing.T) {
	d := &DiscordDriver{cfg: role.DiscordTrigger{AllowedRoles: []string{"mod"}}}
	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "7"},
		Member: &discordgo.Member{Roles: []string{"everyone", "mod"}},
	}}
	if !d.isAllowed(false, msg) {
		t.Error("message from a member with an allowlisted role should be allowed")
	}

	msg.Member.Roles = []string{"everyone"}
	if d.isAllowed(false, msg) {
		t.Error("message from a member without an allowlisted role should be rejected")
	}
}
