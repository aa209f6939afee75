package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gioland/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	JWT       JWTConfig
	UNS       UNSConfig
	Email     EmailConfig
	Auth      AuthConfig
	Workflow  WorkflowConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// WarehouseConfig holds delivery storage settings.
type WarehouseConfig struct {
	Path string `mapstructure:"path"`
}

// JWTConfig holds JWT signing and expiry settings.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// UNSConfig holds the notification channel settings.
type UNSConfig struct {
	URL       string `mapstructure:"url"`
	ChannelID string `mapstructure:"channel_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	TimeZone  string `mapstructure:"time_zone"`
	Suppress  bool   `mapstructure:"suppress"`
}

// EmailConfig holds email delivery settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// AuthConfig holds local accounts, role allow-lists and the static
// group directory. The JSON-valued settings come from single
// environment variables so deployments can manage them as one blob.
type AuthConfig struct {
	Accounts []Account
	// Roles maps role names to "user_id:<name>" / "ldap_group:<g>"
	// entries.
	Roles map[string][]string
	// Groups is the static user to group-list directory.
	Groups map[string][]string
}

// Account is one configured local account.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
}

// DomainAccounts converts the configured accounts to domain values.
func (a *AuthConfig) DomainAccounts() []domain.Account {
	out := make([]domain.Account, len(a.Accounts))
	for i, acc := range a.Accounts {
		out[i] = domain.Account{
			Username:     acc.Username,
			PasswordHash: acc.PasswordHash,
			DisplayName:  acc.DisplayName,
			Email:        acc.Email,
		}
	}
	return out
}

// WorkflowConfig holds delivery workflow settings.
type WorkflowConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	AllowParcelDeletion bool          `mapstructure:"allow_parcel_deletion"`
	UploadLockTimeout   time.Duration `mapstructure:"upload_lock_timeout"`
	AlertRecipients     []string      `mapstructure:"alert_recipients"`
}

// Load reads configuration from environment variables with the GIOLAND_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GIOLAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// Warehouse defaults
	v.SetDefault("warehouse.path", "./var/warehouse")

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "gioland")

	// UNS defaults: no URL means notifications stay local
	v.SetDefault("uns.url", "")
	v.SetDefault("uns.channel_id", "")
	v.SetDefault("uns.username", "")
	v.SetDefault("uns.password", "")
	v.SetDefault("uns.time_zone", "Europe/Copenhagen")
	v.SetDefault("uns.suppress", false)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "eu-west-1")
	v.SetDefault("email.from_address", "noreply@gioland.eea.europa.eu")
	v.SetDefault("email.from_name", "GioLand")

	// Auth defaults: empty JSON blobs
	v.SetDefault("auth.accounts", "[]")
	v.SetDefault("auth.roles", "{}")
	v.SetDefault("auth.groups", "{}")

	// Workflow defaults
	v.SetDefault("workflow.base_url", "http://localhost:8080")
	v.SetDefault("workflow.allow_parcel_deletion", false)
	v.SetDefault("workflow.upload_lock_timeout", "5s")
	v.SetDefault("workflow.alert_recipients", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                    "GIOLAND_SERVER_PORT",
		"server.read_timeout":            "GIOLAND_SERVER_READ_TIMEOUT",
		"server.write_timeout":           "GIOLAND_SERVER_WRITE_TIMEOUT",
		"server.environment":             "GIOLAND_SERVER_ENVIRONMENT",
		"warehouse.path":                 "GIOLAND_WAREHOUSE_PATH",
		"jwt.secret":                     "GIOLAND_JWT_SECRET",
		"jwt.expiry":                     "GIOLAND_JWT_EXPIRY",
		"jwt.issuer":                     "GIOLAND_JWT_ISSUER",
		"uns.url":                        "GIOLAND_UNS_URL",
		"uns.channel_id":                 "GIOLAND_UNS_CHANNEL_ID",
		"uns.username":                   "GIOLAND_UNS_USERNAME",
		"uns.password":                   "GIOLAND_UNS_PASSWORD",
		"uns.time_zone":                  "GIOLAND_UNS_TIME_ZONE",
		"uns.suppress":                   "GIOLAND_UNS_SUPPRESS",
		"email.provider":                 "GIOLAND_EMAIL_PROVIDER",
		"email.region":                   "GIOLAND_EMAIL_REGION",
		"email.from_address":             "GIOLAND_EMAIL_FROM_ADDRESS",
		"email.from_name":                "GIOLAND_EMAIL_FROM_NAME",
		"auth.accounts":                  "GIOLAND_AUTH_ACCOUNTS",
		"auth.roles":                     "GIOLAND_AUTH_ROLES",
		"auth.groups":                    "GIOLAND_AUTH_GROUPS",
		"workflow.base_url":              "GIOLAND_WORKFLOW_BASE_URL",
		"workflow.allow_parcel_deletion": "GIOLAND_WORKFLOW_ALLOW_PARCEL_DELETION",
		"workflow.upload_lock_timeout":   "GIOLAND_WORKFLOW_UPLOAD_LOCK_TIMEOUT",
		"workflow.alert_recipients":      "GIOLAND_WORKFLOW_ALERT_RECIPIENTS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if GIOLAND_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("GIOLAND_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Warehouse = WarehouseConfig{
		Path: v.GetString("warehouse.path"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("jwt.secret"),
		Expiry: v.GetDuration("jwt.expiry"),
		Issuer: v.GetString("jwt.issuer"),
	}
	cfg.UNS = UNSConfig{
		URL:       v.GetString("uns.url"),
		ChannelID: v.GetString("uns.channel_id"),
		Username:  v.GetString("uns.username"),
		Password:  v.GetString("uns.password"),
		TimeZone:  v.GetString("uns.time_zone"),
		Suppress:  v.GetBool("uns.suppress"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
	}

	if err := json.Unmarshal([]byte(v.GetString("auth.accounts")), &cfg.Auth.Accounts); err != nil {
		return nil, fmt.Errorf("parsing GIOLAND_AUTH_ACCOUNTS: %w", err)
	}
	if err := json.Unmarshal([]byte(v.GetString("auth.roles")), &cfg.Auth.Roles); err != nil {
		return nil, fmt.Errorf("parsing GIOLAND_AUTH_ROLES: %w", err)
	}
	if err := json.Unmarshal([]byte(v.GetString("auth.groups")), &cfg.Auth.Groups); err != nil {
		return nil, fmt.Errorf("parsing GIOLAND_AUTH_GROUPS: %w", err)
	}

	// Parse alert recipients from comma-separated string
	var recipients []string
	for _, r := range strings.Split(v.GetString("workflow.alert_recipients"), ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			recipients = append(recipients, r)
		}
	}
	cfg.Workflow = WorkflowConfig{
		BaseURL:             strings.TrimRight(v.GetString("workflow.base_url"), "/"),
		AllowParcelDeletion: v.GetBool("workflow.allow_parcel_deletion"),
		UploadLockTimeout:   v.GetDuration("workflow.upload_lock_timeout"),
		AlertRecipients:     recipients,
	}

	return cfg, nil
}
