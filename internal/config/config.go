package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type SteamConfig struct {
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	CmdPath       string `yaml:"cmd_path"`
	AppID         int    `yaml:"app_id"`
	InstallDir    string `yaml:"install_dir"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

type RuntimeConfig struct {
	ProfilesDir      string `yaml:"profiles_dir"`
	ShimMod          string `yaml:"shim_mod"`
	World            string `yaml:"world"`
	LimitFPS         int    `yaml:"limit_fps"`
	Console          bool   `yaml:"console"`
	KillGraceSeconds int    `yaml:"kill_grace_seconds"`
}

type BenchConfig struct {
	ExecuteTimeoutSeconds int `yaml:"execute_timeout_seconds"`
	CompareTimeoutSeconds int `yaml:"compare_timeout_seconds"`
}

type ReaperConfig struct {
	IntervalSeconds      int `yaml:"interval_seconds"`
	ScratchMaxAgeMinutes int `yaml:"scratch_max_age_minutes"`
}

type Config struct {
	Listen             string        `yaml:"listen"`
	DBPath             string        `yaml:"db_path"`
	ScratchDir         string        `yaml:"scratch_dir"`
	QueueSize          int           `yaml:"queue_size"`
	HandshakeTimeoutMs int           `yaml:"handshake_timeout_ms"`
	MaxMessageSize     string        `yaml:"max_message_size"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	Steam              SteamConfig   `yaml:"steam"`
	Runtime            RuntimeConfig `yaml:"runtime"`
	Bench              BenchConfig   `yaml:"bench"`
	Reaper             ReaperConfig  `yaml:"reaper"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Listen:             "0.0.0.0:7562",
		DBPath:             "./armabench.db",
		ScratchDir:         filepath.Join(os.TempDir(), "arma_bench"),
		QueueSize:          16,
		HandshakeTimeoutMs: 30000,
		MaxMessageSize:     "16MiB",
		LogLevel:           "info",
		LogFormat:          "json",
		Steam: SteamConfig{
			CmdPath:       "/steamcmd/steamcmd.sh",
			AppID:         233780,
			InstallDir:    "/opt/servers",
			CacheTTLHours: 12,
		},
		Runtime: RuntimeConfig{
			ProfilesDir:      "/tmp/arma_profiles",
			ShimMod:          "/opt/@tab",
			World:            "empty",
			LimitFPS:         1000,
			KillGraceSeconds: 60,
		},
		Bench: BenchConfig{
			ExecuteTimeoutSeconds: 30,
			CompareTimeoutSeconds: 120,
		},
		Reaper: ReaperConfig{
			IntervalSeconds:      300,
			ScratchMaxAgeMinutes: 60,
		},
	}
}

func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Steam.User == "" {
		errs = append(errs, errors.New("STEAM_USER not set"))
	}
	if c.Steam.Password == "" {
		errs = append(errs, errors.New("STEAM_PASS not set"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if _, err := c.MaxMessageBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.ScratchDir == "" {
		errs = append(errs, errors.New("scratch_dir is empty"))
	}
	return errors.Join(errs...)
}

// MaxMessageBytes parses MaxMessageSize ("16MiB", "512k", ...).
func (c *Config) MaxMessageBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxMessageSize)
	if err != nil {
		return 0, fmt.Errorf("max_message_size: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("max_message_size must be positive, got %q", c.MaxMessageSize)
	}
	return n, nil
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Steam.CacheTTLHours) * time.Hour
}

func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Runtime.KillGraceSeconds) * time.Second
}

func (c *Config) ExecuteTimeout() time.Duration {
	return time.Duration(c.Bench.ExecuteTimeoutSeconds) * time.Second
}

func (c *Config) CompareTimeout() time.Duration {
	return time.Duration(c.Bench.CompareTimeoutSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalSeconds) * time.Second
}

func (c *Config) ScratchMaxAge() time.Duration {
	return time.Duration(c.Reaper.ScratchMaxAgeMinutes) * time.Minute
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TAB_ADDR"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("STEAM_USER"); v != "" {
		cfg.Steam.User = v
	}
	if v := os.Getenv("STEAM_PASS"); v != "" {
		cfg.Steam.Password = v
	}
	if v := os.Getenv("ARMABENCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ARMABENCH_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if v := os.Getenv("ARMABENCH_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("ARMABENCH_MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = v
	}
	if v := os.Getenv("ARMABENCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ARMABENCH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ARMABENCH_STEAMCMD"); v != "" {
		cfg.Steam.CmdPath = v
	}
	if v := os.Getenv("ARMABENCH_INSTALL_DIR"); v != "" {
		cfg.Steam.InstallDir = v
	}
	if v := os.Getenv("ARMABENCH_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Steam.CacheTTLHours = n
		}
	}
	if v := os.Getenv("ARMABENCH_SHIM_MOD"); v != "" {
		cfg.Runtime.ShimMod = v
	}
	if v := os.Getenv("ARMABENCH_PROFILES_DIR"); v != "" {
		cfg.Runtime.ProfilesDir = v
	}
	if v := os.Getenv("ARMABENCH_CONSOLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Runtime.Console = b
		}
	}
	if v := os.Getenv("ARMABENCH_KILL_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.KillGraceSeconds = n
		}
	}
}
