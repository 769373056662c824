package config_test

import (
	"strings"
	"testing"

	"github.com/hearsay-live/hearsay/internal/config"
)

func TestValidate_NoProvidersIsValid(t *testing.T) {
	t.Parallel()
	// Degraded mode: missing LLM and STT providers only warn, never fail.
	yaml := `
server:
  listen_addr: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NegativeWindowCapacity(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  window_capacity: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative window_capacity, got nil")
	}
	if !strings.Contains(err.Error(), "window_capacity") {
		t.Errorf("error should mention window_capacity, got: %v", err)
	}
}

func TestValidate_NegativeContextLines(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  context_lines: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative context_lines, got nil")
	}
	if !strings.Contains(err.Error(), "context_lines") {
		t.Errorf("error should mention context_lines, got: %v", err)
	}
}

func TestValidate_NegativeDedupHorizon(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  dedup_horizon: -10s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative dedup_horizon, got nil")
	}
	if !strings.Contains(err.Error(), "dedup_horizon") {
		t.Errorf("error should mention dedup_horizon, got: %v", err)
	}
}

func TestValidate_TLSWithBothFilesIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/hearsay/tls.crt
    key_file: /etc/hearsay/tls.key
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProviderNameIsNotFatal(t *testing.T) {
	t.Parallel()
	// Unrecognised provider names only warn; third-party providers may be
	// registered at runtime under any name.
	yaml := `
providers:
  llm:
    name: my-custom-gateway
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	// Check that "openai" is in the LLM list.
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

func TestValidate_FallbackChain(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
    api_key: sk-primary
    fallbacks:
      - name: groq
        api_key: gk-backup
  stt:
    name: whisper
    base_url: http://localhost:9000
    fallbacks:
      - name: openai
        api_key: sk-backup
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(cfg.Providers.LLM.Fallbacks); got != 1 {
		t.Fatalf("llm fallbacks = %d, want 1", got)
	}
	if cfg.Providers.LLM.Fallbacks[0].Name != "groq" {
		t.Errorf("llm fallback name = %q, want %q", cfg.Providers.LLM.Fallbacks[0].Name, "groq")
	}
}

func TestValidate_FallbackWithoutPrimary(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    fallbacks:
      - name: groq
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallbacks without a primary provider")
	}
	if !strings.Contains(err.Error(), "primary") {
		t.Errorf("error should mention the missing primary, got: %v", err)
	}
}

func TestValidate_NestedFallbacksRejected(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: whisper
    fallbacks:
      - name: openai
        fallbacks:
          - name: whisper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for nested fallbacks")
	}
	if !strings.Contains(err.Error(), "nested") {
		t.Errorf("error should mention nesting, got: %v", err)
	}
}

func TestValidate_FallbackMissingName(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
    fallbacks:
      - api_key: orphaned-key
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback entry without a name")
	}
}

func TestValidate_InvalidDedupSimilarity(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  dedup_similarity: levenshtein
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown similarity measure")
	}
	if !strings.Contains(err.Error(), "dedup_similarity") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestValidate_DedupSimilarityValues(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "jaccard", "jaro_winkler"} {
		yaml := "pipeline:\n  dedup_similarity: \"" + name + "\"\n"
		if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
			t.Errorf("similarity %q: unexpected error: %v", name, err)
		}
	}
}
