package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tmux      TmuxConfig      `yaml:"tmux"`
	Respond   RespondConfig   `yaml:"respond"`
	Policy    PolicyConfig    `yaml:"policy"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audio     AudioConfig     `yaml:"audio"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type TmuxConfig struct {
	Bin          string `yaml:"bin"`
	Socket       string `yaml:"socket"`
	CaptureLines int    `yaml:"capture_lines"`
}

type RespondConfig struct {
	// DelayMs overrides the preset's response delay when positive.
	DelayMs int `yaml:"delay_ms"`
	// DedupTTLMs is how long a handled prompt fingerprint suppresses
	// re-sends for the same pane.
	DedupTTLMs int `yaml:"dedup_ttl_ms"`
	// CheckIntervalMs overrides the preset's check interval when positive.
	CheckIntervalMs int `yaml:"check_interval_ms"`
}

type PolicyConfig struct {
	// PresetsFile points at a YAML file of custom presets layered over
	// the built-ins. Optional.
	PresetsFile string `yaml:"presets_file"`
	// ExtraDenylist adds regex patterns to the default denylist.
	ExtraDenylist []string `yaml:"extra_denylist"`
	// WatchPresets reloads the presets file when it changes on disk.
	WatchPresets bool `yaml:"watch_presets"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	// ContinueText is typed into each affected session when a usage
	// limit window closes.
	ContinueText string `yaml:"continue_text"`
}

type AudioConfig struct {
	Enabled  bool    `yaml:"enabled"`
	File     string  `yaml:"file"`
	OffsetMs int     `yaml:"offset_ms"`
	LengthMs int     `yaml:"length_ms"`
	Volume   float64 `yaml:"volume"`
}

type StorageConfig struct {
	StateDir string `yaml:"state_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads path and applies defaults. A missing file yields the
// pure default configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:7601"
	}
	if cfg.Tmux.Bin == "" {
		cfg.Tmux.Bin = "tmux"
	}
	if cfg.Tmux.CaptureLines == 0 {
		cfg.Tmux.CaptureLines = 50
	}
	if cfg.Respond.DedupTTLMs == 0 {
		cfg.Respond.DedupTTLMs = 600000
	}
	if cfg.RateLimit.ContinueText == "" {
		cfg.RateLimit.ContinueText = "continue"
	}
	if cfg.Audio.Volume == 0 {
		cfg.Audio.Volume = 1.0
	}
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = defaultStateDir()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

func defaultStateDir() string {
	if dir := os.Getenv("RESPONDERD_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/responderd"
	}
	return home + "/.local/state/responderd"
}
