package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	if err := validateConfig(GetDefaults()); err != nil {
		t.Errorf("defaults rejected: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port above range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero pdf workers", func(c *Config) { c.PDF.Workers = 0 }},
		{"negative pdf dpi", func(c *Config) { c.PDF.DPI = -1 }},
		{"iou threshold zero", func(c *Config) { c.OCR.IoUThreshold = 0 }},
		{"iou threshold above one", func(c *Config) { c.OCR.IoUThreshold = 1.2 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaults()
			tc.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestDefaultCategories(t *testing.T) {
	cfg := GetDefaults()

	// Selectable categories exclude the always-masked identifier classes.
	for _, c := range cfg.Privacy.EnabledCategories {
		switch c {
		case "IC", "PASSPORT", "EMAIL", "PHONE", "DOB", "BANK_ACCOUNT", "CREDIT_CARD":
			t.Errorf("always-on category %s must not appear in enabled_categories", c)
		}
	}
}
