package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"partnerline/internal/domain"
)

// FileName is the workspace configuration file.
const FileName = "partnerline.yml"

// Partner change policies applied when a negotiation edits partner_selection.
const (
	PartnerChangeIgnore = "ignore"
	PartnerChangeReject = "reject"
)

// Config models partnerline.yml.
type Config struct {
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	Proposals struct {
		// ExpireAfter is the idle period after which a sweep expires an
		// open proposal. Zero disables the sweep.
		ExpireAfter time.Duration `yaml:"expire_after" json:"expire_after"`
	} `yaml:"proposals" json:"proposals"`
	Messages    Messages `yaml:"messages" json:"messages"`
	Negotiation struct {
		PartnerChange string `yaml:"partner_change" json:"partner_change"`
	} `yaml:"negotiation" json:"negotiation"`
	Catalog struct {
		FocusCategories       map[string]CatalogEntry `yaml:"focus_categories" json:"focus_categories"`
		TerminationConditions map[string]CatalogEntry `yaml:"termination_conditions" json:"termination_conditions"`
		Currencies            []string                `yaml:"currencies" json:"currencies"`
	} `yaml:"catalog" json:"catalog"`
	Listing struct {
		DefaultLimit int `yaml:"default_limit" json:"default_limit"`
		MaxLimit     int `yaml:"max_limit" json:"max_limit"`
	} `yaml:"listing" json:"listing"`
	Webhooks []Webhook `yaml:"webhooks" json:"webhooks"`
	RBAC     struct {
		Moderators []string `yaml:"moderators" json:"moderators"`
	} `yaml:"rbac" json:"rbac"`
}

// Messages holds the default thread phrases per action.
type Messages struct {
	Accept    string `yaml:"accept" json:"accept"`
	Decline   string `yaml:"decline" json:"decline"`
	Cancel    string `yaml:"cancel" json:"cancel"`
	Negotiate string `yaml:"negotiate" json:"negotiate"`
	Expire    string `yaml:"expire" json:"expire"`
	Create    string `yaml:"create" json:"create"`
}

type CatalogEntry struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

type Webhook struct {
	ID             string   `yaml:"id" json:"id"`
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events"`
	Secret         string   `yaml:"secret" json:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" json:"enabled"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Phrase returns the default message for action.
func (m Messages) Phrase(action domain.Action) string {
	switch action {
	case domain.ActionAccept:
		return m.Accept
	case domain.ActionDecline:
		return m.Decline
	case domain.ActionCancel:
		return m.Cancel
	case domain.ActionNegotiate:
		return m.Negotiate
	case domain.ActionExpire:
		return m.Expire
	}
	return ""
}

// DomainCatalog exposes the configured catalog keys for content validation.
func (c *Config) DomainCatalog() domain.Catalog {
	cat := domain.Catalog{Currencies: slices.Clone(c.Catalog.Currencies)}
	for key := range c.Catalog.FocusCategories {
		cat.FocusCategories = append(cat.FocusCategories, key)
	}
	for key := range c.Catalog.TerminationConditions {
		cat.TerminationConditions = append(cat.TerminationConditions, key)
	}
	slices.Sort(cat.FocusCategories)
	slices.Sort(cat.TerminationConditions)
	return cat
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format %q must be json or console", c.Log.Format)
	}
	if c.Proposals.ExpireAfter < 0 {
		return fmt.Errorf("config.proposals.expire_after must not be negative")
	}
	switch c.Negotiation.PartnerChange {
	case PartnerChangeIgnore, PartnerChangeReject:
	default:
		return fmt.Errorf("config.negotiation.partner_change must be %q or %q", PartnerChangeIgnore, PartnerChangeReject)
	}
	m := c.Messages
	for name, phrase := range map[string]string{"accept": m.Accept, "decline": m.Decline, "cancel": m.Cancel, "negotiate": m.Negotiate, "expire": m.Expire, "create": m.Create} {
		if phrase == "" {
			return fmt.Errorf("config.messages.%s is required", name)
		}
	}
	for key := range c.Catalog.FocusCategories {
		if key == "" {
			return fmt.Errorf("config.catalog.focus_categories contains empty key")
		}
	}
	for key := range c.Catalog.TerminationConditions {
		if key == "" {
			return fmt.Errorf("config.catalog.termination_conditions contains empty key")
		}
	}
	for _, cur := range c.Catalog.Currencies {
		if len(cur) != 3 {
			return fmt.Errorf("config.catalog.currencies: %q is not a 3-letter code", cur)
		}
	}
	if c.Listing.DefaultLimit <= 0 || c.Listing.MaxLimit <= 0 {
		return fmt.Errorf("config.listing limits must be positive")
	}
	if c.Listing.DefaultLimit > c.Listing.MaxLimit {
		return fmt.Errorf("config.listing.default_limit exceeds max_limit")
	}
	seen := map[string]bool{}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		if hook.ID != "" {
			if seen[hook.ID] {
				return fmt.Errorf("config.webhooks: duplicate id %s", hook.ID)
			}
			seen[hook.ID] = true
		}
	}
	for _, id := range c.RBAC.Moderators {
		if id == "" {
			return fmt.Errorf("config.rbac.moderators contains empty id")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `log:
  level: info
  format: json

proposals:
  # idle time after which "pl proposal expire --due" expires an open proposal; 0 disables
  expire_after: 0s

messages:
  create: "Sent a partnership proposal"
  accept: "Accepted the proposal"
  decline: "Declined the proposal"
  cancel: "Cancelled the proposal"
  negotiate: "Submitted updated proposal terms"
  expire: "Proposal expired"

negotiation:
  # ignore: keep the original counterpart and store the submitted selection
  # reject: refuse negotiations that change partner_selection.partner_id
  partner_change: ignore

catalog:
  focus_categories: {}
  termination_conditions: {}
  currencies: []

listing:
  default_limit: 50
  max_limit: 200

webhooks: []

rbac:
  moderators: []
`
