// Package config loads imagedex configuration from defaults, the user
// config file, the project config file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/index"
	"github.com/Aman-CERP/imagedex/internal/search"
	"github.com/Aman-CERP/imagedex/internal/store"
)

// ProjectFileName is the project config file looked up in the project root.
const ProjectFileName = ".imagedex.yaml"

// DefaultDataDir is the project-relative directory holding the store.
const DefaultDataDir = ".imagedex"

// Config represents the complete imagedex configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// PathsConfig locates the store and the images.
type PathsConfig struct {
	// DataDir holds the store, its lock and the text index.
	// Relative paths are resolved against the project root.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// StoreFile is the SQLite file name inside DataDir.
	StoreFile string `yaml:"store_file" json:"store_file"`

	// ImageDir is prepended to relative record file references.
	ImageDir string `yaml:"image_dir" json:"image_dir"`
}

// IndexConfig tunes the indexing pipeline.
type IndexConfig struct {
	Workers         int           `yaml:"workers" json:"workers"`
	QueueHighWater  int           `yaml:"queue_high_water" json:"queue_high_water"`
	QueueCapacity   int           `yaml:"queue_capacity" json:"queue_capacity"`
	HighWaterWait   time.Duration `yaml:"high_water_wait" json:"high_water_wait"`
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`

	// LoadRate limits image loads per second. Zero is unlimited.
	LoadRate float64 `yaml:"load_rate" json:"load_rate"`

	// MaxFileSize is the largest image payload loaded, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// FlushEvery is the number of appended records staged before a
	// store flush.
	FlushEvery int `yaml:"flush_every" json:"flush_every"`

	// CacheSize is the number of decoded records kept by the store's read cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	Backpressure index.DelaySchedule `yaml:"backpressure" json:"backpressure"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	MaxHits        int     `yaml:"max_hits" json:"max_hits"`
	GeoThresholdKM float64 `yaml:"geo_threshold_km" json:"geo_threshold_km"`
	GeoBoxDegrees  float64 `yaml:"geo_box_degrees" json:"geo_box_degrees"`

	// Descriptor is the feature field searched by the descriptor searcher.
	Descriptor string `yaml:"descriptor" json:"descriptor"`

	Weights WeightsConfig `yaml:"weights" json:"weights"`
	HNSW    HNSWConfig    `yaml:"hnsw" json:"hnsw"`
}

// WeightsConfig holds the fusion weight of each searcher.
// A weight of zero disables that searcher in fusion.
type WeightsConfig struct {
	Geo        float64 `yaml:"geo" json:"geo"`
	Text       float64 `yaml:"text" json:"text"`
	Descriptor float64 `yaml:"descriptor" json:"descriptor"`
}

// HNSWConfig tunes the descriptor graph.
type HNSWConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	pipeline := index.DefaultConfig()

	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:   DefaultDataDir,
			StoreFile: "imagedex.db",
		},
		Index: IndexConfig{
			Workers:         runtime.NumCPU(),
			QueueHighWater:  pipeline.QueueHighWater,
			QueueCapacity:   pipeline.QueueCapacity,
			HighWaterWait:   pipeline.HighWaterWait,
			MonitorInterval: pipeline.MonitorInterval,
			MaxFileSize:     32 << 20,
			CacheSize:       store.DefaultCacheSize,
			Backpressure:    index.DefaultDelaySchedule(),
		},
		Search: SearchConfig{
			MaxHits:        10,
			GeoThresholdKM: search.DefaultThresholdKM,
			GeoBoxDegrees:  1.0,
			Descriptor:     feature.FieldColorHistogram,
			Weights: WeightsConfig{
				Geo:        1.0,
				Text:       1.0,
				Descriptor: 1.0,
			},
			HNSW: HNSWConfig{
				M:        store.DefaultHNSWM,
				EfSearch: store.DefaultHNSWEfSearch,
			},
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/imagedex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imagedex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "imagedex", "config.yaml")
	}
	return filepath.Join(home, ".config", "imagedex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user config.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load loads configuration for the project rooted at dir.
//
// Precedence, lowest first: defaults, user config, project config
// (.imagedex.yaml or .imagedex.yml), environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges the project config file from dir, preferring .yaml over .yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectFileName, ".imagedex.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith copies every non-zero value of other over c.
// A backpressure schedule with bands replaces the whole schedule.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.StoreFile != "" {
		c.Paths.StoreFile = other.Paths.StoreFile
	}
	if other.Paths.ImageDir != "" {
		c.Paths.ImageDir = other.Paths.ImageDir
	}

	// Index
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.QueueHighWater != 0 {
		c.Index.QueueHighWater = other.Index.QueueHighWater
	}
	if other.Index.QueueCapacity != 0 {
		c.Index.QueueCapacity = other.Index.QueueCapacity
	}
	if other.Index.HighWaterWait != 0 {
		c.Index.HighWaterWait = other.Index.HighWaterWait
	}
	if other.Index.MonitorInterval != 0 {
		c.Index.MonitorInterval = other.Index.MonitorInterval
	}
	if other.Index.LoadRate != 0 {
		c.Index.LoadRate = other.Index.LoadRate
	}
	if other.Index.MaxFileSize != 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	if other.Index.FlushEvery != 0 {
		c.Index.FlushEvery = other.Index.FlushEvery
	}
	if other.Index.CacheSize != 0 {
		c.Index.CacheSize = other.Index.CacheSize
	}
	if len(other.Index.Backpressure.Bands) > 0 {
		c.Index.Backpressure = other.Index.Backpressure
	}

	// Search
	if other.Search.MaxHits != 0 {
		c.Search.MaxHits = other.Search.MaxHits
	}
	if other.Search.GeoThresholdKM != 0 {
		c.Search.GeoThresholdKM = other.Search.GeoThresholdKM
	}
	if other.Search.GeoBoxDegrees != 0 {
		c.Search.GeoBoxDegrees = other.Search.GeoBoxDegrees
	}
	if other.Search.Descriptor != "" {
		c.Search.Descriptor = other.Search.Descriptor
	}
	if other.Search.Weights != (WeightsConfig{}) {
		c.Search.Weights = other.Search.Weights
	}
	if other.Search.HNSW.M != 0 {
		c.Search.HNSW.M = other.Search.HNSW.M
	}
	if other.Search.HNSW.EfSearch != 0 {
		c.Search.HNSW.EfSearch = other.Search.HNSW.EfSearch
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies IMAGEDEX_* environment variables.
// Empty variables are ignored; malformed ones are errors.
func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"IMAGEDEX_WORKERS", &c.Index.Workers},
		{"IMAGEDEX_QUEUE_HIGH_WATER", &c.Index.QueueHighWater},
		{"IMAGEDEX_MAX_HITS", &c.Search.MaxHits},
	}
	for _, e := range ints {
		v := strings.TrimSpace(os.Getenv(e.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	if v := strings.TrimSpace(os.Getenv("IMAGEDEX_GEO_THRESHOLD_KM")); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("IMAGEDEX_GEO_THRESHOLD_KM: %w", err)
		}
		c.Search.GeoThresholdKM = km
	}
	if v := os.Getenv("IMAGEDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("IMAGEDEX_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be at least 1, got %d", c.Index.Workers)
	}
	if c.Index.QueueHighWater < 1 {
		return fmt.Errorf("index.queue_high_water must be at least 1, got %d", c.Index.QueueHighWater)
	}
	if c.Index.QueueCapacity < c.Index.QueueHighWater {
		return fmt.Errorf("index.queue_capacity (%d) must not be below queue_high_water (%d)",
			c.Index.QueueCapacity, c.Index.QueueHighWater)
	}
	if c.Index.LoadRate < 0 {
		return fmt.Errorf("index.load_rate must be non-negative, got %g", c.Index.LoadRate)
	}
	if c.Index.MaxFileSize < 0 {
		return fmt.Errorf("index.max_file_size must be non-negative, got %d", c.Index.MaxFileSize)
	}
	if err := c.Index.Backpressure.Validate(); err != nil {
		return fmt.Errorf("index.backpressure: %w", err)
	}

	if c.Search.MaxHits < 1 {
		return fmt.Errorf("search.max_hits must be at least 1, got %d", c.Search.MaxHits)
	}
	if c.Search.GeoThresholdKM <= 0 {
		return fmt.Errorf("search.geo_threshold_km must be positive, got %g", c.Search.GeoThresholdKM)
	}
	w := c.Search.Weights
	if w.Geo < 0 || w.Text < 0 || w.Descriptor < 0 {
		return fmt.Errorf("search.weights must be non-negative, got geo=%g text=%g descriptor=%g",
			w.Geo, w.Text, w.Descriptor)
	}
	if c.Search.HNSW.M < 2 {
		return fmt.Errorf("search.hnsw.m must be at least 2, got %d", c.Search.HNSW.M)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataPath resolves the data directory against the project root.
func (c *Config) DataPath(root string) string {
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	return filepath.Join(root, c.Paths.DataDir)
}

// StorePath returns the SQLite store path for the project root.
func (c *Config) StorePath(root string) string {
	return filepath.Join(c.DataPath(root), c.Paths.StoreFile)
}

// ImagePath resolves the image directory against the project root.
// Returns "" when no image directory is configured.
func (c *Config) ImagePath(root string) string {
	if c.Paths.ImageDir == "" || filepath.IsAbs(c.Paths.ImageDir) {
		return c.Paths.ImageDir
	}
	return filepath.Join(root, c.Paths.ImageDir)
}

// PipelineConfig returns the indexing pipeline configuration.
func (c *Config) PipelineConfig() index.Config {
	cfg := index.DefaultConfig()
	cfg.Concurrency = c.Index.Workers
	cfg.QueueHighWater = c.Index.QueueHighWater
	cfg.QueueCapacity = c.Index.QueueCapacity
	cfg.HighWaterWait = c.Index.HighWaterWait
	cfg.MonitorInterval = c.Index.MonitorInterval
	cfg.LoadRate = c.Index.LoadRate
	cfg.Backpressure = c.Index.Backpressure
	return cfg
}

// FindProjectRoot walks up from startDir to the first directory holding a
// project config file or a .git directory. It returns the absolute startDir
// if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectFileName)) ||
			fileExists(filepath.Join(currentDir, ".imagedex.yml")) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
