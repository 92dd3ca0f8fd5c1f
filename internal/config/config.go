package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pool-server/internal/logger"
	"pool-server/internal/server"
	"pool-server/internal/threadpool"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
}

// ServerConfig は接続受付の設定
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
	SlowDelay      string `yaml:"slow_delay" json:"slow_delay"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
	ReadBufferSize int    `yaml:"read_buffer_size" json:"read_buffer_size"`
	ReusePort      bool   `yaml:"reuse_port" json:"reuse_port"`
}

// PoolConfig はスレッドプールの設定
type PoolConfig struct {
	Workers      int    `yaml:"workers" json:"workers"`
	JoinTimeout  string `yaml:"join_timeout" json:"join_timeout"`
	LockOSThread bool   `yaml:"lock_os_thread" json:"lock_os_thread"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	FileLevel string `yaml:"file_level" json:"file_level"`
}

// AdminConfig は管理APIの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Settings は起動に必要な設定をまとめたもの
type Settings struct {
	Server server.Config
	Pool   threadpool.Config

	LogLevel     logger.Level
	LogFile      string // 空でファイル出力なし
	LogFileLevel logger.Level

	AdminEnabled bool
	AdminAddr    string
}

// Default はデフォルト設定を返す
func Default() Settings {
	return Settings{
		Server:       server.DefaultConfig(),
		Pool:         threadpool.DefaultConfig(),
		LogLevel:     logger.LevelInfo,
		LogFile:      "pool-server.log",
		LogFileLevel: logger.LevelDebug,
		AdminAddr:    "127.0.0.1:8080",
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be non-negative")
	}
	if f.Server.ReadBufferSize < 0 {
		return fmt.Errorf("server.read_buffer_size must be non-negative")
	}
	if f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}

	durations := []struct {
		field string
		value string
	}{
		{"server.slow_delay", f.Server.SlowDelay},
		{"server.read_timeout", f.Server.ReadTimeout},
		{"pool.join_timeout", f.Pool.JoinTimeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}

	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logger.ParseLevel(f.Log.FileLevel); err != nil {
		return fmt.Errorf("log.file_level: %w", err)
	}

	return nil
}

// ToSettings はFileConfigをDefault()に重ねたSettingsに変換する
func (f *FileConfig) ToSettings() (Settings, error) {
	s := Default()

	// Server設定
	if f.Server.Addr != "" {
		s.Server.Addr = f.Server.Addr
	}
	if f.Server.MaxConnections > 0 {
		s.Server.MaxConnections = f.Server.MaxConnections
	}
	if f.Server.ReadBufferSize > 0 {
		s.Server.ReadBufferSize = f.Server.ReadBufferSize
	}
	s.Server.ReusePort = f.Server.ReusePort
	if d, err := parseDuration("server.slow_delay", f.Server.SlowDelay); err != nil {
		return s, err
	} else if f.Server.SlowDelay != "" {
		s.Server.SlowDelay = d
	}
	if d, err := parseDuration("server.read_timeout", f.Server.ReadTimeout); err != nil {
		return s, err
	} else if f.Server.ReadTimeout != "" {
		s.Server.ReadTimeout = d
	}

	// Pool設定
	if f.Pool.Workers > 0 {
		s.Pool.Size = f.Pool.Workers
	}
	s.Pool.LockOSThread = f.Pool.LockOSThread
	if d, err := parseDuration("pool.join_timeout", f.Pool.JoinTimeout); err != nil {
		return s, err
	} else if f.Pool.JoinTimeout != "" {
		s.Pool.JoinTimeout = d
	}

	// Log設定
	if f.Log.Level != "" {
		level, err := logger.ParseLevel(f.Log.Level)
		if err != nil {
			return s, fmt.Errorf("log.level: %w", err)
		}
		s.LogLevel = level
	}
	if f.Log.File != "" {
		s.LogFile = f.Log.File
	}
	if f.Log.FileLevel != "" {
		level, err := logger.ParseLevel(f.Log.FileLevel)
		if err != nil {
			return s, fmt.Errorf("log.file_level: %w", err)
		}
		s.LogFileLevel = level
	}

	// Admin設定
	s.AdminEnabled = f.Admin.Enabled
	if f.Admin.Addr != "" {
		s.AdminAddr = f.Admin.Addr
	}

	return s, nil
}

// parseDuration は空文字を0として期間をパースする
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be non-negative", field)
	}
	return d, nil
}
