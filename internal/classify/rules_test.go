package classify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRulePackDefaults(t *testing.T) {
	pack, err := LoadRulePack("", nil)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if pack.DurationOutlierSigma != 2 {
		t.Fatalf("expected default sigma 2, got %f", pack.DurationOutlierSigma)
	}
	if len(pack.TimingVocabulary) == 0 {
		t.Fatalf("expected default timing vocabulary")
	}
}

func TestLoadRulePackMissingFileFallsBack(t *testing.T) {
	pack, err := LoadRulePack(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if pack.EnvCorrelationThreshold != 0.7 {
		t.Fatalf("expected default threshold, got %f", pack.EnvCorrelationThreshold)
	}
}

func TestLoadRulePackFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "timing_vocabulary:\n  - slowpoke\nduration_outlier_sigma: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rule pack: %v", err)
	}

	pack, err := LoadRulePack(path, nil)
	if err != nil {
		t.Fatalf("load rule pack: %v", err)
	}
	if pack.DurationOutlierSigma != 3 {
		t.Fatalf("expected sigma 3, got %f", pack.DurationOutlierSigma)
	}
	if len(pack.TimingVocabulary) != 1 || pack.TimingVocabulary[0] != "slowpoke" {
		t.Fatalf("expected overridden vocabulary, got %v", pack.TimingVocabulary)
	}
	// Fields absent from the file keep defaults.
	if len(pack.ConcurrencyVocabulary) == 0 {
		t.Fatalf("expected default concurrency vocabulary to survive")
	}
}

func TestLoadRulePackRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("timing_vocabulary: [unterminated"), 0o644); err != nil {
		t.Fatalf("write rule pack: %v", err)
	}

	if _, err := LoadRulePack(path, nil); err == nil {
		t.Fatalf("expected error for malformed rule pack")
	}
}
