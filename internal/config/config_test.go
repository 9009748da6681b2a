package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnerline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, PartnerChangeIgnore, cfg.Negotiation.PartnerChange)
	assert.Equal(t, "Accepted the proposal", cfg.Messages.Phrase(domain.ActionAccept))
	assert.Equal(t, time.Duration(0), cfg.Proposals.ExpireAfter)
	assert.Equal(t, 50, cfg.Listing.DefaultLimit)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
proposals:
  expire_after: 336h
messages:
  accept: "Deal!"
catalog:
  focus_categories:
    co_marketing:
      title: Co-marketing
  currencies: [USD, EUR]
`))
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, cfg.Proposals.ExpireAfter)
	assert.Equal(t, "Deal!", cfg.Messages.Accept)
	assert.Equal(t, "Declined the proposal", cfg.Messages.Decline)
	cat := cfg.DomainCatalog()
	assert.Equal(t, []string{"co_marketing"}, cat.FocusCategories)
	assert.Equal(t, []string{"USD", "EUR"}, cat.Currencies)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"partner change": "negotiation:\n  partner_change: maybe\n",
		"currency":       "catalog:\n  currencies: [DOLLARS]\n",
		"limits":         "listing:\n  default_limit: 500\n",
		"webhook url":    "webhooks:\n  - id: a\n",
		"log level":      "log:\n  level: loud\n",
		"empty phrase":   "messages:\n  expire: \"\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
}
