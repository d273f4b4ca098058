package config

import (
	"strings"
	"testing"
)

// validConfig returns defaults patched with the secrets that Defaults leaves
// empty on purpose.
func validConfig() Config {
	cfg := Defaults()
	cfg.Provider.ApiKey = "test-key"
	cfg.Twilio.AccountSID = "ACxxxx"
	cfg.Twilio.AuthToken = "token"
	cfg.Twilio.FromNumber = "+15550001111"
	cfg.Recipients = []RecipientConfig{
		{Name: "alice", Phone: "+15551234567", Unit: 100},
	}
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.ApiKey = ""
	cfg.Twilio.AuthToken = ""
	cfg.Scheduler.DailyAt = "25:99"
	cfg.Recipients = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"provider: api_key",
		"twilio: auth_token",
		"daily_at",
		"recipients:",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_Mode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "stream"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected unknown mode error, got: %v", err)
	}
}

func TestValidate_Timezone(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown timezone") {
		t.Fatalf("expected timezone error, got: %v", err)
	}
}

func TestParseDailyAt(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"06:00", 360, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{" 06:30 ", 390, false},
		{"6am", 0, true},
		{"24:00", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDailyAt(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDailyAt(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDailyAt(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDailyAt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)

	if red.Provider.ApiKey != "***" {
		t.Errorf("api key not redacted: %q", red.Provider.ApiKey)
	}
	if red.Twilio.AuthToken != "***" {
		t.Errorf("twilio token not redacted: %q", red.Twilio.AuthToken)
	}
	if red.Database.Password != "***" {
		t.Errorf("db password not redacted: %q", red.Database.Password)
	}
	if red.Recipients[0].Phone != "***" {
		t.Errorf("recipient phone not redacted: %q", red.Recipients[0].Phone)
	}
	// The original must be untouched.
	if cfg.Provider.ApiKey != "test-key" || cfg.Recipients[0].Phone != "+15551234567" {
		t.Error("RedactedConfig mutated the original config")
	}
}
