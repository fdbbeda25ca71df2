package config

import (
	"context"
	"testing"
	"time"
)

func FuzzParser_ParseString(f *testing.F) {
	f.Add(`catalogsync = {}`)
	f.Add(`catalogsync = { fetch = { concurrency = 4 } }`)
	f.Add(`catalogsync = { remote = { base_url = "https://example.com/" } }`)
	f.Add(`catalogsync = { trust = { require_signatures = false } }`)

	parser := NewParser(nil, WithTimeout(100*time.Millisecond))

	f.Fuzz(func(t *testing.T, luaCode string) {
		cfg, err := parser.ParseString(context.Background(), luaCode)
		if err == nil {
			if verr := cfg.Validate(); verr != nil {
				t.Errorf("ParseString accepted an invalid config: %v", verr)
			}
		}
	})
}

func FuzzGenerator_QuoteLuaString(f *testing.F) {
	f.Add("hello")
	f.Add(`say "hello"`)
	f.Add("line1\nline2")
	f.Add(`C:\\Users\\test`)

	gen := NewGenerator()

	f.Fuzz(func(t *testing.T, input string) {
		quoted := gen.quoteLuaString(input)
		if len(quoted) < 2 || quoted[0] != '"' || quoted[len(quoted)-1] != '"' {
			t.Errorf("quoteLuaString(%q) = %q, invalid format", input, quoted)
		}
	})
}
