package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the stylesearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Patch     PatchConfig     `yaml:"patch"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
	MaxUploadMB     int      `yaml:"max_upload_mb"`
}

// DatabaseConfig holds catalog store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds CLIP inference service settings.
type EmbeddingConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

// IndexConfig holds vector index file settings.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds retrieval and ranking policy settings.
// Defaults match the tuned production values; every threshold here is a
// policy decision, not an incidental constant.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	RetrievalFactor  int     `yaml:"retrieval_factor"`   // neighbors requested = limit * factor
	RetrievalCap     int     `yaml:"retrieval_cap"`      // hard cap on neighbors requested
	TextWeightIntent float64 `yaml:"text_weight_intent"` // text share when structured intent present
	TextWeightPlain  float64 `yaml:"text_weight_plain"`  // text share otherwise
}

// PatchConfig holds patch localization policy settings.
type PatchConfig struct {
	GridSize          int     `yaml:"grid_size"`      // standard grid cells per side
	FineGridSize      int     `yaml:"fine_grid_size"` // intent-driven grid cells per side
	MinCellPx         int     `yaml:"min_cell_px"`    // minimum fine-grid cell dimension
	MinStandardCellPx int     `yaml:"min_standard_cell_px"`
	MinCropPx         int     `yaml:"min_crop_px"` // skip clipped cells below this
	LowConfidence     float64 `yaml:"low_confidence_threshold"`
	ItemBoostCutoff   float64 `yaml:"item_boost_cutoff"` // item similarity needed to earn a boost
	ItemBoost         float64 `yaml:"item_boost"`
	MaterialWeight    float64 `yaml:"material_weight"` // material share of the blended search target
	ZoomFactor        float64 `yaml:"zoom_factor"`     // center-zoom for image-only queries
	Workers           int     `yaml:"workers"`         // grid evaluation pool size, 0 = NumCPU
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"*"}
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 16
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 512
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 168
	}
	if c.Index.Path == "" {
		c.Index.Path = "data/products.index"
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 9
	}
	if c.Search.RetrievalFactor <= 0 {
		c.Search.RetrievalFactor = 8
	}
	if c.Search.RetrievalCap <= 0 {
		c.Search.RetrievalCap = 500
	}
	if c.Search.TextWeightIntent <= 0 {
		c.Search.TextWeightIntent = 0.65
	}
	if c.Search.TextWeightPlain <= 0 {
		c.Search.TextWeightPlain = 0.55
	}
	if c.Patch.GridSize <= 0 {
		c.Patch.GridSize = 5
	}
	if c.Patch.FineGridSize <= 0 {
		c.Patch.FineGridSize = 6
	}
	if c.Patch.MinCellPx <= 0 {
		c.Patch.MinCellPx = 40
	}
	if c.Patch.MinStandardCellPx <= 0 {
		c.Patch.MinStandardCellPx = 50
	}
	if c.Patch.MinCropPx <= 0 {
		c.Patch.MinCropPx = 30
	}
	if c.Patch.LowConfidence <= 0 {
		c.Patch.LowConfidence = 0.15
	}
	if c.Patch.ItemBoostCutoff <= 0 {
		c.Patch.ItemBoostCutoff = 0.2
	}
	if c.Patch.ItemBoost <= 0 {
		c.Patch.ItemBoost = 0.1
	}
	if c.Patch.MaterialWeight <= 0 {
		c.Patch.MaterialWeight = 0.7
	}
	if c.Patch.ZoomFactor <= 0 {
		c.Patch.ZoomFactor = 1.2
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.Search.TextWeightIntent >= 1 || c.Search.TextWeightPlain >= 1 {
		return fmt.Errorf("search text weights must be fractions below 1")
	}
	if c.Patch.MaterialWeight >= 1 {
		return fmt.Errorf("patch.material_weight must be a fraction below 1")
	}
	if c.Patch.ZoomFactor <= 1 {
		return fmt.Errorf("patch.zoom_factor must be greater than 1, got %g", c.Patch.ZoomFactor)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
