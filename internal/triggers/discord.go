package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// discordMessageLimit is the API's hard per-message character cap.
const discordMessageLimit = 2000

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// DiscordDriver is a gateway-WebSocket, outbound-only Discord bot client.
// It responds only to DMs and messages that mention the bot.
type DiscordDriver struct {
	cfg     role.DiscordTrigger
	handler bus.Handler
	logger  *slog.Logger

	session   *discordgo.Session
	botUserID string
}

// NewDiscordDriver reads the bot token from cfg.TokenEnv and constructs
// the gateway session.
func NewDiscordDriver(cfg role.DiscordTrigger, handler bus.Handler, logger *slog.Logger) (*DiscordDriver, error) {
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("discord: env var %s is not set", cfg.TokenEnv)
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordDriver{cfg: cfg, handler: handler, logger: logger, session: session}, nil
}

func (d *DiscordDriver) Start(_ context.Context) error {
	d.session.AddHandler(d.handleMessage)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := d.session.User("@me")
	if err != nil {
		d.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	d.botUserID = user.ID

	return nil
}

func (d *DiscordDriver) Stop() error {
	return d.session.Close()
}

func (d *DiscordDriver) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == d.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	mentioned := d.mentionsBot(m)

	if !isDM && !mentioned {
		return
	}
	if !d.isAllowed(isDM, m) {
		d.logger.Debug("discord: message rejected by access control", slog.String("user_id", m.Author.ID))
		return
	}

	channelID := m.ChannelID
	prompt := strings.TrimSpace(stripMention(m.Content, d.botUserID))
	if d.cfg.PromptTemplate != "" && d.cfg.PromptTemplate != "{message}" {
		prompt = strings.ReplaceAll(d.cfg.PromptTemplate, "{message}", prompt)
	}

	metadata := map[string]string{
		"user":       m.Author.Username,
		"channel_id": channelID,
		"user_id":    m.Author.ID,
	}

	d.handler(bus.TriggerEvent{
		TriggerType: bus.TriggerDiscord,
		Prompt:      prompt,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
		ReplyFn: func(text string) error {
			return d.reply(channelID, text)
		},
	})
}

func (d *DiscordDriver) mentionsBot(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u.ID == d.botUserID {
			return true
		}
	}
	return false
}

// isAllowed applies the per-context access rules. In a DM the sender must
// be in the user-id allowlist when one is configured; role-only configs
// deny DMs outright. In a guild channel the channel allowlist gates first,
// then roles and user ids are matched as a union.
func (d *DiscordDriver) isAllowed(isDM bool, m *discordgo.MessageCreate) bool {
	if isDM {
		if len(d.cfg.AllowedUserIDs) == 0 {
			return len(d.cfg.AllowedRoles) == 0
		}
		return containsString(d.cfg.AllowedUserIDs, m.Author.ID)
	}

	if len(d.cfg.ChannelIDs) > 0 && !containsString(d.cfg.ChannelIDs, m.ChannelID) {
		return false
	}

	if len(d.cfg.AllowedRoles) == 0 && len(d.cfg.AllowedUserIDs) == 0 {
		return true
	}
	if containsString(d.cfg.AllowedUserIDs, m.Author.ID) {
		return true
	}
	if m.Member != nil {
		for _, roleID := range m.Member.Roles {
			if containsString(d.cfg.AllowedRoles, roleID) {
				return true
			}
		}
	}
	return false
}

func (d *DiscordDriver) reply(channelID, text string) error {
	for _, chunk := range bus.Chunk(text, discordMessageLimit) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func stripMention(content, botUserID string) string {
	return mentionPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := mentionPattern.FindStringSubmatch(match)
		if len(groups) == 2 && groups[1] == botUserID {
			return ""
		}
		return match
	})
}

