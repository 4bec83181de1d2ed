// Package config provides configuration management for the PDF inverter.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"pdf-invert/internal/logger"
	"pdf-invert/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-invert-config.json"
	// EnvPassword is the environment variable holding the default user password
	EnvPassword = "PDF_INVERT_PASSWORD"
	// DefaultInvRatio is the default inversion strength
	DefaultInvRatio = 0.9
	// DefaultMarginPolicy matches overlay.DefaultMarginPolicy
	DefaultMarginPolicy = "symmetric"
	// DefaultMinMargin is the minimum overlay margin in points
	DefaultMinMargin = 36.0
	// DefaultBlendMode is the blend mode of the overlay graphics state
	DefaultBlendMode = "Exclusion"
	// DefaultOverlayMode paints the overlay from the page content stream
	DefaultOverlayMode = "content"
	// DefaultBoxSource sizes the overlay from the MediaBox
	DefaultBoxSource = "mediabox"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-invert", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		InvRatio:        DefaultInvRatio,
		MarginPolicy:    DefaultMarginPolicy,
		MinMargin:       DefaultMinMargin,
		BlendMode:       DefaultBlendMode,
		OverlayMode:     DefaultOverlayMode,
		BoxSource:       DefaultBoxSource,
		ScribbleDensity: 0,
		ScribbleOverlay: false,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist or is not valid JSON, it uses default values.
// Keys missing from the file keep their defaults, so an explicit
// "inv_ratio": 0 is preserved.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
			return nil
		}
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		// 配置文件格式错误时回退到默认值
		logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
		m.config = defaultConfig()
		return nil
	}

	// Apply defaults for empty fields
	if config.MarginPolicy == "" {
		config.MarginPolicy = DefaultMarginPolicy
	}
	if config.BlendMode == "" {
		config.BlendMode = DefaultBlendMode
	}
	if config.OverlayMode == "" {
		config.OverlayMode = DefaultOverlayMode
	}
	if config.BoxSource == "" {
		config.BoxSource = DefaultBoxSource
	}
	if config.MinMargin < 0 {
		config.MinMargin = DefaultMinMargin
	}
	if config.ScribbleDensity < 0 {
		logger.Warn("negative scribble_density in config, using 0", logger.Int("value", config.ScribbleDensity))
		config.ScribbleDensity = 0
	}

	logger.Info("configuration loaded successfully",
		logger.String("path", m.configPath),
		logger.Float64("invRatio", config.InvRatio),
		logger.String("marginPolicy", config.MarginPolicy),
		logger.Int("scribbleDensity", config.ScribbleDensity))
	m.config = config
	return nil
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetInvRatio returns the inversion ratio clamped to [0, 1].
func (m *ConfigManager) GetInvRatio() float64 {
	r := m.GetConfig().InvRatio
	switch {
	case r < 0 || r != r:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// GetPassword returns the default user password from the environment.
func (m *ConfigManager) GetPassword() string {
	return os.Getenv(EnvPassword)
}
