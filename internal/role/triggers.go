package role

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// errUnknownTriggerType marks a trigger variant this build does not know;
// the loader skips such entries instead of failing the whole document.
var errUnknownTriggerType = errors.New("unknown trigger type")

// TriggerConfig is the discriminated-union member type for spec.triggers.
// Each concrete trigger config implements it; yaml.v3 has no native
// discriminated-union support, so Spec.Triggers is decoded by hand in
// rawDefinition.toDefinition via a type-tag peek (see raw.go).
type TriggerConfig interface {
	TriggerType() string
}

// CronTrigger fires on a cron schedule.
type CronTrigger struct {
	Schedule   string `yaml:"schedule"`
	Prompt     string `yaml:"prompt"`
	Timezone   string `yaml:"timezone"`
	Autonomous bool   `yaml:"autonomous"`
}

func (CronTrigger) TriggerType() string { return "cron" }

// FileWatchTrigger fires on filesystem changes under one or more paths.
type FileWatchTrigger struct {
	Paths           []string `yaml:"paths"`
	Extensions      []string `yaml:"extensions"`
	PromptTemplate  string   `yaml:"prompt_template"`
	DebounceSeconds float64  `yaml:"debounce_seconds"`
	ProcessExisting bool     `yaml:"process_existing"`
	Autonomous      bool     `yaml:"autonomous"`
}

func (FileWatchTrigger) TriggerType() string { return "file_watch" }

// WebhookTrigger binds a loopback-only HTTP listener.
type WebhookTrigger struct {
	Path         string `yaml:"path"`
	Port         int    `yaml:"port"`
	Method       string `yaml:"method"`
	Secret       string `yaml:"secret,omitempty"`
	RateLimitRPM int    `yaml:"rate_limit_rpm"`
	Autonomous   bool   `yaml:"autonomous"`
}

func (WebhookTrigger) TriggerType() string { return "webhook" }

// TelegramTrigger drives a long-polling bot client. allowed_users and
// allowed_user_ids have union semantics: when either is set the sender
// must match at least one entry; when both are empty all senders pass.
type TelegramTrigger struct {
	TokenEnv       string   `yaml:"token_env"`
	AllowedUsers   []string `yaml:"allowed_users"`
	AllowedUserIDs []string `yaml:"allowed_user_ids"`
	PromptTemplate string   `yaml:"prompt_template"`
	Autonomous     bool     `yaml:"autonomous"`
}

func (TelegramTrigger) TriggerType() string { return "telegram" }

// DiscordTrigger drives a gateway WebSocket bot client.
type DiscordTrigger struct {
	TokenEnv       string   `yaml:"token_env"`
	ChannelIDs     []string `yaml:"channel_ids"`
	AllowedRoles   []string `yaml:"allowed_roles"`
	AllowedUserIDs []string `yaml:"allowed_user_ids"`
	PromptTemplate string   `yaml:"prompt_template"`
	Autonomous     bool     `yaml:"autonomous"`
}

func (DiscordTrigger) TriggerType() string { return "discord" }

// decodeTrigger inspects a raw YAML node's "type" field and decodes it into
// the matching concrete TriggerConfig, applying defaults for fields the
// document omits.
func decodeTrigger(node *yaml.Node) (TriggerConfig, error) {
	var tag struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&tag); err != nil {
		return nil, fmt.Errorf("decoding trigger type tag: %w", err)
	}

	switch tag.Type {
	case "cron":
		cfg := CronTrigger{Timezone: "UTC"}
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding cron trigger: %w", err)
		}
		return cfg, nil
	case "file_watch":
		cfg := FileWatchTrigger{PromptTemplate: "File changed: {path}", DebounceSeconds: 1.0}
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding file_watch trigger: %w", err)
		}
		return cfg, nil
	case "webhook":
		cfg := WebhookTrigger{Path: "/webhook", Port: 8080, Method: "POST", RateLimitRPM: 60}
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding webhook trigger: %w", err)
		}
		return cfg, nil
	case "telegram":
		cfg := TelegramTrigger{TokenEnv: "TELEGRAM_BOT_TOKEN", PromptTemplate: "{message}"}
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding telegram trigger: %w", err)
		}
		return cfg, nil
	case "discord":
		cfg := DiscordTrigger{TokenEnv: "DISCORD_BOT_TOKEN", PromptTemplate: "{message}"}
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decoding discord trigger: %w", err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownTriggerType, tag.Type)
	}
}
