// Package config loads the turn-execution engine's configuration surface
// (§6): provider base URL, per-role model bindings, resource paths, optional
// MCP server config, chat-history trimming, and the tool step cap.
package config

import (
	"fmt"

	"github.com/turnengine/engine/internal/llm"
)

// Config is the root configuration structure.
type Config struct {
	Provider    ProviderConfig        `yaml:"provider"`
	Roles       map[string]RoleConfig `yaml:"roles"`
	Paths       PathsConfig           `yaml:"paths"`
	MCP         MCPConfig             `yaml:"mcp"`
	History     HistoryConfig         `yaml:"history"`
	Tools       ToolsConfig           `yaml:"tools"`
	Store       StoreConfig           `yaml:"store"`
	Maintenance MaintenanceConfig     `yaml:"maintenance"`
	Watch       WatchFileConfig       `yaml:"watch"`
}

// ProviderConfig configures the LLM transport (§6 "LLM transport", §4.16
// "Multi-Provider LLM Backend"). Kind selects the provider family; the
// remaining fields carry only what that kind reads, mirroring
// llm.ProviderConfig's own union shape.
type ProviderConfig struct {
	Kind         string `yaml:"kind"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`

	// Bedrock-specific.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// RoleConfig binds a logical role to a model, generation params, and an
// optional forced response format (§6 "per-role bindings").
type RoleConfig struct {
	Model          string         `yaml:"model"`
	Params         map[string]any `yaml:"params"`
	ResponseFormat string         `yaml:"response_format"`
}

// PathsConfig locates the durable resources the engine reads and writes.
type PathsConfig struct {
	WorldState  string `yaml:"world_state"`
	ChatHistory string `yaml:"chat_history"`
	Prompts     string `yaml:"prompts"`
}

// MCPConfig configures the single memory MCP server used by the engine
// (§9 Open Question c: multiple servers are configurable in principle, but
// only one is ever wired, so its id is kept explicit rather than implied).
// APIKey, when set without Auth.Mode, is sent as a static bearer header for
// backward compatibility; Auth, when its Mode is non-empty, takes over and
// refreshes its own token (§4.22).
type MCPConfig struct {
	ServerID        string        `yaml:"server_id"`
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	ProtocolVersion string        `yaml:"protocol_version"`
	Auth            MCPAuthConfig `yaml:"auth"`
}

// MCPAuthConfig mirrors mcp.AuthConfig in the config file's own yaml shape.
type MCPAuthConfig struct {
	Mode              string   `yaml:"mode"`
	JWTSecret         string   `yaml:"jwt_secret"`
	JWTSubject        string   `yaml:"jwt_subject"`
	JWTExpirySeconds  int      `yaml:"jwt_expiry_seconds"`
	OAuthClientID     string   `yaml:"oauth_client_id"`
	OAuthClientSecret string   `yaml:"oauth_client_secret"`
	OAuthTokenURL     string   `yaml:"oauth_token_url"`
	OAuthScopes       []string `yaml:"oauth_scopes"`
}

// HistoryConfig bounds the chat-history log.
type HistoryConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// ToolsConfig bounds the tool loop.
type ToolsConfig struct {
	StepLimit int `yaml:"step_limit"`
}

// StoreConfig selects the chat-history backend of the serve command's
// maintenance scheduler (§4.17). An empty Driver keeps the JSONL file;
// "postgres" or "sqlite3" opens a history.SQLStore over DSN with these pool
// settings. World-state and the turn loop's own chat-history stay file-backed
// whatever Driver says.
type StoreConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// MaintenanceConfig configures the background scheduler (§4.21). Empty cron
// fields leave the corresponding job disabled.
type MaintenanceConfig struct {
	HistoryTrimCron   string           `yaml:"history_trim_cron"`
	WorldSnapshotCron string           `yaml:"world_snapshot_cron"`
	Snapshot          SnapshotS3Config `yaml:"snapshot"`
}

// SnapshotS3Config configures the S3 destination for world-state snapshots.
type SnapshotS3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// WatchFileConfig configures serve mode's config/prompt hot-reload (§4.20).
type WatchFileConfig struct {
	Enabled        bool `yaml:"enabled"`
	DebounceMillis int  `yaml:"debounce_millis"`
}

// knownRoles are the roles §4.11 assigns work to; Validate rejects configs
// missing any of them so node wiring never falls back to a zero RoleConfig
// silently.
var knownRoles = []string{"router", "planner", "reflect", "answer"}

// Validate checks that every role the node kinds depend on is configured and
// that response formats, if set, are values llm.ResponseFormat recognizes.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case "", "ollama":
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("config: provider.base_url is required")
		}
	case "anthropic", "openai":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("config: provider.api_key is required for provider.kind %q", c.Provider.Kind)
		}
	case "gemini":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("config: provider.api_key is required for provider.kind gemini")
		}
	case "bedrock":
		if c.Provider.Region == "" {
			return fmt.Errorf("config: provider.region is required for provider.kind bedrock")
		}
	default:
		return fmt.Errorf("config: provider.kind %q is not recognized", c.Provider.Kind)
	}
	for _, role := range knownRoles {
		rc, ok := c.Roles[role]
		if !ok || rc.Model == "" {
			return fmt.Errorf("config: roles.%s.model is required", role)
		}
		switch llm.ResponseFormat(rc.ResponseFormat) {
		case llm.ResponseFormatNone, llm.ResponseFormatJSON:
		default:
			return fmt.Errorf("config: roles.%s.response_format %q is not recognized", role, rc.ResponseFormat)
		}
	}
	if c.Paths.WorldState == "" || c.Paths.ChatHistory == "" || c.Paths.Prompts == "" {
		return fmt.Errorf("config: paths.world_state, paths.chat_history, and paths.prompts are required")
	}
	if c.Tools.StepLimit <= 0 {
		return fmt.Errorf("config: tools.step_limit must be positive")
	}
	return nil
}
