package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	DatabaseURL string
	DataDir     string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
	TuningFile  string
	Game        Tuning
}

// Tuning holds the game constants. Every field can be overridden by env or by
// the YAML file named in TUNING_FILE, env taking precedence.
type Tuning struct {
	ShakeThreshold         float64 `yaml:"shake_threshold"`
	ShakeCooldownMs        int     `yaml:"shake_cooldown_ms"`
	SensorUpdateIntervalMs int     `yaml:"sensor_update_interval_ms"`
	CountdownSecs          int     `yaml:"countdown_secs"`
	PlayDurationSecs       int     `yaml:"play_duration_secs"`
	MilestoneInterval      int     `yaml:"milestone_interval"`
}

func DefaultTuning() Tuning {
	return Tuning{
		ShakeThreshold:         1.5,
		ShakeCooldownMs:        150,
		SensorUpdateIntervalMs: 100,
		CountdownSecs:          3,
		PlayDurationSecs:       10,
		MilestoneInterval:      10,
	}
}

// Load reads .env when present, then the environment, then the tuning file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DataDir:     os.Getenv("DATA_DIR"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		TuningFile:  os.Getenv("TUNING_FILE"),
		Game:        DefaultTuning(),
	}

	if cfg.TuningFile != "" {
		t, err := LoadTuning(cfg.TuningFile, cfg.Game)
		if err != nil {
			return cfg, err
		}
		cfg.Game = t
	}

	cfg.Game.ShakeThreshold = getEnvFloat("SHAKE_THRESHOLD", cfg.Game.ShakeThreshold)
	cfg.Game.ShakeCooldownMs = getEnvInt("SHAKE_COOLDOWN_MS", cfg.Game.ShakeCooldownMs)
	cfg.Game.SensorUpdateIntervalMs = getEnvInt("SENSOR_UPDATE_INTERVAL_MS", cfg.Game.SensorUpdateIntervalMs)
	cfg.Game.CountdownSecs = getEnvInt("COUNTDOWN_SECS", cfg.Game.CountdownSecs)
	cfg.Game.PlayDurationSecs = getEnvInt("PLAY_DURATION", cfg.Game.PlayDurationSecs)
	cfg.Game.MilestoneInterval = getEnvInt("MILESTONE_INTERVAL", cfg.Game.MilestoneInterval)

	if err := cfg.Game.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadTuning overlays the YAML file at path onto base. Keys missing from the
// file keep their base value.
func LoadTuning(path string, base Tuning) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading tuning file: %w", err)
	}
	t := base
	if err := yaml.Unmarshal(data, &t); err != nil {
		return base, fmt.Errorf("parsing tuning file: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.ShakeThreshold <= 0:
		return fmt.Errorf("shake threshold must be positive, got %v", t.ShakeThreshold)
	case t.ShakeCooldownMs < 0:
		return fmt.Errorf("shake cooldown must not be negative, got %d", t.ShakeCooldownMs)
	case t.SensorUpdateIntervalMs <= 0:
		return fmt.Errorf("sensor update interval must be positive, got %d", t.SensorUpdateIntervalMs)
	case t.CountdownSecs < 0:
		return fmt.Errorf("countdown must not be negative, got %d", t.CountdownSecs)
	case t.PlayDurationSecs <= 0:
		return fmt.Errorf("play duration must be positive, got %d", t.PlayDurationSecs)
	case t.MilestoneInterval < 0:
		return fmt.Errorf("milestone interval must not be negative, got %d", t.MilestoneInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
