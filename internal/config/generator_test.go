package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGenerator_Generate_Defaults(t *testing.T) {
	gen := NewGenerator()
	gen.now = func() time.Time { return time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC) }

	out, err := gen.Generate(Default())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, want := range []string{
		"-- Generated: 2025-01-15T09:30:00Z",
		"catalogsync = {",
		"remote = {",
		`base_url = "` + DefaultBaseURL + `",`,
		"timeout_seconds = 10,",
		"require_signatures = true,",
		`supported = "1.0",`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("generated config missing %q:\n%s", want, out)
		}
	}
	// Empty optional strings are left out so the defaults apply. The header
	// comment mentions cache.path in an example, so only assignments count.
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "--") {
			continue
		}
		for _, absent := range []string{"active_key =", "backup_key =", "path ="} {
			if strings.HasPrefix(line, absent) {
				t.Errorf("generated config assigns %q:\n%s", absent, out)
			}
		}
	}
	if !strings.Contains(out, "-- ") || !strings.Contains(out, "platform.pick") {
		t.Errorf("header comment with the platform example missing:\n%s", out)
	}
}

func TestGenerator_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "defaults", config: Default()},
		{
			name: "customized",
			config: func() *Config {
				c := Default()
				c.Remote.BaseURL = "http://localhost:8080/catalogs/"
				c.Fetch.Concurrency = 12
				c.Fetch.MaxBodyBytes = 1 << 20
				c.Cache.Path = `C:\Users\trader\catalogs.db`
				c.Cache.ExpiryHours = 2
				c.Trust.ActiveKey = "ed25519:WQOjBQOHuQxOE79ZWdAgyoiGxVrKZMiYPvM1c3feypM="
				c.Trust.BackupKey = "ed25519:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
				c.Trust.RequireSignatures = false
				c.Log = LogConfig{Level: "debug", Format: "json"}
				return c
			}(),
		},
	}

	gen := NewGenerator()
	parser := NewParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := gen.Generate(tt.config)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			got, err := parser.ParseString(context.Background(), out)
			if err != nil {
				t.Fatalf("ParseString(generated) error = %v\n%s", err, out)
			}
			if diff := cmp.Diff(tt.config, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerator_NilConfig(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Error("Generate(nil) expected error")
	}
}

func TestGenerator_QuoteLuaString(t *testing.T) {
	gen := NewGenerator()
	tests := []struct {
		input string
		want  string
	}{
		{input: "plain", want: `"plain"`},
		{input: `say "hi"`, want: `"say \"hi\""`},
		{input: `C:\path`, want: `"C:\\path"`},
		{input: "a\nb\tc\r", want: `"a\nb\tc\r"`},
	}
	for _, tt := range tests {
		if got := gen.quoteLuaString(tt.input); got != tt.want {
			t.Errorf("quoteLuaString(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
