package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerConfigValidate(t *testing.T) {
	valid := PollerConfig{Kind: "meetings", Mode: "past", Interval: time.Minute}
	assert.NoError(t, valid.Validate())

	withDate := valid
	withDate.StartDate = "2024-03-01"
	assert.NoError(t, withDate.Validate())

	tests := []struct {
		name   string
		mutate func(*PollerConfig)
	}{
		{"bad kind", func(p *PollerConfig) { p.Kind = "calls" }},
		{"bad mode", func(p *PollerConfig) { p.Mode = "future" }},
		{"negative interval", func(p *PollerConfig) { p.Interval = -time.Second }},
		{"malformed date", func(p *PollerConfig) { p.StartDate = "2024-3-1" }},
		{"impossible date", func(p *PollerConfig) { p.StartDate = "2024-13-40" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestLicensesConfigValidate(t *testing.T) {
	l := LicensesConfig{
		LowerGroup:     "zoom-webinar-500",
		UpperGroup:     "zoom-webinar-1000",
		InactivityDays: 90,
		Months:         6,
		AccountSuffix:  "cern.ch",
	}
	assert.NoError(t, l.Validate())

	same := l
	same.UpperGroup = same.LowerGroup
	assert.Error(t, same.Validate())

	noSuffix := l
	noSuffix.AccountSuffix = ""
	assert.Error(t, noSuffix.Validate())
	noSuffix.UsePrimaryEmail = true
	assert.NoError(t, noSuffix.Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Licenses.InactivityDays)
	assert.Equal(t, 6, cfg.Licenses.Months)
	assert.Equal(t, 500, cfg.Licenses.LowerCapacity)
	assert.Equal(t, 1000, cfg.Licenses.UpperCapacity)
	assert.Equal(t, 20, cfg.Archive.MaxBackups)
	assert.Equal(t, 2, cfg.Archive.RetentionDays)
}
