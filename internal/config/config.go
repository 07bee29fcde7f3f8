package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/char5742/evhz/internal/consts"
	"github.com/char5742/evhz/internal/estimator"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Rate   RateConfig   `toml:"rate"`
	Poll   PollConfig   `toml:"poll"`
	Device DeviceConfig `toml:"device"`
	Output OutputConfig `toml:"output"`
}

// RateConfig はレート推定の設定
type RateConfig struct {
	// 瞬間レートのサニティ上限（Hz）。これ以上はクロックの異常とみなして棄却する。0で無効。
	MaxHz uint64 `toml:"max_hz"`
}

// PollConfig はイベント待ちの設定
type PollConfig struct {
	TimeoutMillis int `toml:"timeout_ms"` // 1回のイベント待ちの上限（ミリ秒）
}

// Timeout はイベント待ちの上限をDurationで返す
func (p PollConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMillis) * time.Millisecond
}

// DeviceConfig はデバイス列挙の設定
type DeviceConfig struct {
	MaxDevices int  `toml:"max_devices"` // 列挙する候補デバイス数の上限
	Hotplug    bool `toml:"hotplug"`     // 実行中のデバイス追加を監視するか
}

// OutputConfig は出力の設定
type OutputConfig struct {
	Verbose bool `toml:"verbose"` // イベントごとの出力を行うか（-nで上書きされる）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Rate:   RateConfig{MaxHz: estimator.DefaultMaxHz},
		Poll:   PollConfig{TimeoutMillis: 100},
		Device: DeviceConfig{MaxDevices: consts.MaxDevices, Hotplug: true},
		Output: OutputConfig{Verbose: true},
	}
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "evhz"), nil
}

// LoadConfig は設定ファイルから設定を読み込む。
// ファイルが存在しない場合はデフォルト設定を保存して返す。
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, err
	}

	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
