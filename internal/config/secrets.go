package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Provider
	out.Provider = cfg.Provider
	redact(&out.Provider.ApiKey)

	// Database
	out.Database = cfg.Database
	redact(&out.Database.DSN)
	redact(&out.Database.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Twilio
	out.Twilio = cfg.Twilio
	redact(&out.Twilio.AuthToken)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy. Recipient phone numbers are personal data; mask them too.
	if cfg.Provider.Sports != nil {
		out.Provider.Sports = append([]string(nil), cfg.Provider.Sports...)
	}
	if cfg.Provider.MarketTypes != nil {
		out.Provider.MarketTypes = append([]string(nil), cfg.Provider.MarketTypes...)
	}
	if cfg.Provider.Bookmakers != nil {
		out.Provider.Bookmakers = append([]string(nil), cfg.Provider.Bookmakers...)
	}
	if cfg.Recipients != nil {
		out.Recipients = make([]RecipientConfig, len(cfg.Recipients))
		copy(out.Recipients, cfg.Recipients)
		for i := range out.Recipients {
			redact(&out.Recipients[i].Phone)
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
