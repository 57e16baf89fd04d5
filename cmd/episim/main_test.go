package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/san-kum/episim/internal/config"
)

func newScenarioCmd(t *testing.T) *cobra.Command {
	t.Cleanup(func() {
		preset, configFile, freq, params = "", "", config.DefaultFreq, nil
	})
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&freq, "freq", config.DefaultFreq, "")
	cmd.Flags().StringArrayVar(&params, "param", nil, "")
	return cmd
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		value   string
		wantErr bool
	}{
		{"foi__beta=0.3", "foi__beta", "0.3", false},
		{" foi__beta = 0.3 ", "foi__beta", "0.3", false},
		{"foi__beta", "", "", true},
		{"=0.3", "", "", true},
		{"foi__beta=", "", "", true},
	}
	for _, tt := range tests {
		name, value, err := parseAssignment(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if name != tt.name || value != tt.value {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.in, name, value, tt.name, tt.value)
		}
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	cmd := newScenarioCmd(t)
	if err := cmd.Flags().Set("freq", "12h"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("param", "foi__beta=0.5"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd, []string{"seir"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Model != "seir" {
		t.Errorf("model = %q, want seir", cfg.Model)
	}
	if cfg.Clock.Freq != "12h" {
		t.Errorf("freq = %q, want 12h", cfg.Clock.Freq)
	}
	if cfg.Params["foi__beta"] != 0.5 {
		t.Errorf("foi__beta = %v, want 0.5", cfg.Params["foi__beta"])
	}
}

func TestLoadConfigUnchangedFlagsKeepPreset(t *testing.T) {
	cmd := newScenarioCmd(t)
	preset = "fast"

	cfg, err := loadConfig(cmd, []string{"sir"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := config.GetPreset("sir", "fast")
	if cfg.Clock != want.Clock {
		t.Errorf("clock = %+v, want preset %+v", cfg.Clock, want.Clock)
	}
}

func TestLoadConfigUnknownPreset(t *testing.T) {
	cmd := newScenarioCmd(t)
	preset = "nope"

	if _, err := loadConfig(cmd, []string{"sir"}); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
