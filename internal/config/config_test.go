package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "short fully masked", input: "secret", want: maskedValue},
		{name: "boundary fully masked", input: "12345678", want: maskedValue},
		{name: "long keeps edges", input: "ghp_abcdefgh1234", want: "gh<" + maskedValue + ">34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := Config{
		ModelName:        "gemini-2.5-flash",
		PostgresPassword: "super_secret_password",
		GitHubToken:      "ghp_verysecrettoken123",
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}

	out := string(data)
	for _, secret := range []string{"super_secret_password", "ghp_verysecrettoken123"} {
		if strings.Contains(out, secret) {
			t.Errorf("marshaled config leaks secret %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, maskedValue) {
		t.Errorf("marshaled config should contain mask placeholder, got: %s", out)
	}
}

func TestStringDoesNotLeakSecrets(t *testing.T) {
	cfg := Config{PostgresPassword: "super_secret_password"}

	if s := cfg.String(); strings.Contains(s, "super_secret_password") {
		t.Errorf("String() leaks password: %s", s)
	}
}

func TestFullModelName(t *testing.T) {
	cfg := &Config{ModelName: "gemini-2.5-flash"}

	if got := cfg.FullModelName(); got != "googleai/gemini-2.5-flash" {
		t.Errorf("FullModelName() = %q, want googleai/gemini-2.5-flash", got)
	}
}
