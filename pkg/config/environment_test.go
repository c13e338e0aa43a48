package config

import "testing"

func TestParseEnvironment(t *testing.T) {
	tests := map[string]Environment{
		"QA":         EnvQA,
		"qa":         EnvQA,
		"PreProd":    EnvPreProd,
		"pre-prod":   EnvPreProd,
		"PRODUCTION": EnvProduction,
		" prod ":     EnvProduction,
	}
	for in, want := range tests {
		got, err := ParseEnvironment(in)
		if err != nil || got != want {
			t.Errorf("ParseEnvironment(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseEnvironment("staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestResolveEnvironment(t *testing.T) {
	t.Setenv(EnvVarEnvironment, "")
	t.Setenv(EnvVarEnvironmentLegacy, "")

	if got, _ := ResolveEnvironment("", ""); got != EnvQA {
		t.Errorf("default = %q, want QA", got)
	}
	if got, _ := ResolveEnvironment("", "preprod"); got != EnvPreProd {
		t.Errorf("config value = %q, want PreProd", got)
	}

	t.Setenv(EnvVarEnvironmentLegacy, "production")
	if got, _ := ResolveEnvironment("", "preprod"); got != EnvProduction {
		t.Errorf("$environment = %q, want Production", got)
	}

	t.Setenv(EnvVarEnvironment, "preprod")
	if got, _ := ResolveEnvironment("", "qa"); got != EnvPreProd {
		t.Errorf("$CRM_ENVIRONMENT = %q, want PreProd", got)
	}

	if got, _ := ResolveEnvironment("qa", "production"); got != EnvQA {
		t.Errorf("flag = %q, want QA", got)
	}

	if _, err := ResolveEnvironment("mars", ""); err == nil {
		t.Error("expected error for invalid flag value")
	}
}

func TestEnvironmentReadOnly(t *testing.T) {
	if !EnvProduction.ReadOnly() || EnvQA.ReadOnly() || EnvPreProd.ReadOnly() {
		t.Error("only Production is read-only")
	}
}
