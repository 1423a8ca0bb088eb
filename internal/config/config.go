package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete ggrep configuration: CLI/embedding
// ergonomics (Paths/Search/Embeddings/Performance/LogLevel) plus the
// storage+concurrency engine's own tunables (Engine, Ranking), all
// loadable from the same user/project/env layering.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	LogLevel    string            `yaml:"log_level" json:"log_level"`

	// Engine carries the admission/compaction/GC/IPC/daemon tunables
	// (spec §4.6/§4.9/§4.10/§4.11/§4.12) that used to only exist as
	// DefaultEngineConfig(); this makes them part of the same
	// .ggrep.yaml/env-override path as everything else.
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Ranking carries spec §4.8's per-mode bucket-weight and
	// score-multiplier tables. ModeWeights is keyed by mode name
	// ("balanced", "discovery", ...) rather than internal/search's Mode
	// type, since config must not import the search package.
	Ranking RankingConfig `yaml:"ranking" json:"ranking"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures chunking and result-shaping parameters.
// Configurable via:
//  1. User config (~/.config/ggrep/config.yaml) - personal defaults
//  2. Project config (.ggrep.yaml) - per-repo tuning
//  3. Env vars (GGREP_*) - highest priority
type SearchConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults   int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider             string        `yaml:"provider" json:"provider"`
	Model                string        `yaml:"model" json:"model"`
	Dimensions           int           `yaml:"dimensions" json:"dimensions"`
	BatchSize            int           `yaml:"batch_size" json:"batch_size"`
	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	MemoryLimit   string `yaml:"memory_limit" json:"memory_limit"`
	Quantization  string `yaml:"quantization" json:"quantization"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// BucketWeights is one mode's row of spec §4.8's "Mode bucket weights"
// table.
type BucketWeights struct {
	Code  int `yaml:"code" json:"code"`
	Docs  int `yaml:"docs" json:"docs"`
	Graph int `yaml:"graph" json:"graph"`
}

// RankingConfig is the tunable half of spec §4.8's ranking model.
type RankingConfig struct {
	ModeWeights map[string]BucketWeights `yaml:"mode_weights" json:"mode_weights"`

	StructuralMultiplier float64 `yaml:"structural_multiplier" json:"structural_multiplier"`
	TestPathMultiplier   float64 `yaml:"test_path_multiplier" json:"test_path_multiplier"`
	DocsMultiplier       float64 `yaml:"docs_multiplier" json:"docs_multiplier"`
	GraphMultiplier      float64 `yaml:"graph_multiplier" json:"graph_multiplier"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// defaultModeWeights reproduces spec §4.8's literal bucket-weight table.
func defaultModeWeights() map[string]BucketWeights {
	return map[string]BucketWeights{
		"balanced":       {Code: 4, Docs: 3, Graph: 3},
		"discovery":      {Code: 3, Docs: 4, Graph: 3},
		"implementation": {Code: 6, Docs: 2, Graph: 2},
		"planning":       {Code: 2, Docs: 6, Graph: 2},
		"debug":          {Code: 7, Docs: 2, Graph: 1},
	}
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
			MaxResults:   20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:             "", // Empty selects the static embedder; Ollama is not probed
			Model:                "qwen3-embedding:8b",
			Dimensions:           0, // Auto-detect from embedder
			BatchSize:            32,
			ModelDownloadTimeout: 10 * time.Minute,
			OllamaHost:           "", // Empty uses default http://localhost:11434
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "500ms",
			CacheSize:     1000,
			MemoryLimit:   "auto",
			Quantization:  "F16",
			SQLiteCacheMB: 64,
		},
		LogLevel: "info",
		Engine:   DefaultEngineConfig(),
		Ranking: RankingConfig{
			ModeWeights:          defaultModeWeights(),
			StructuralMultiplier: 1.25,
			TestPathMultiplier:   0.85,
			DocsMultiplier:       0.5,
			GraphMultiplier:      1.0,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ggrep/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ggrep/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ggrep", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ggrep", "config.yaml")
	}
	return filepath.Join(home, ".config", "ggrep", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ggrep/config.yaml)
//  3. Project config (.ggrep.yaml in project root)
//  4. Environment variables (GGREP_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .ggrep.yaml or .ggrep.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".ggrep.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".ggrep.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Search
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.ModelDownloadTimeout != 0 {
		c.Embeddings.ModelDownloadTimeout = other.Embeddings.ModelDownloadTimeout
	}

	// Performance
	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.MemoryLimit != "" {
		c.Performance.MemoryLimit = other.Performance.MemoryLimit
	}
	if other.Performance.Quantization != "" {
		c.Performance.Quantization = other.Performance.Quantization
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	mergeEngine(&c.Engine, other.Engine)
	mergeRanking(&c.Ranking, other.Ranking)
}

// mergeEngine merges other's non-zero fields into e.
func mergeEngine(e *EngineConfig, other EngineConfig) {
	if other.MaxConcurrentQueries != 0 {
		e.MaxConcurrentQueries = other.MaxConcurrentQueries
	}
	if other.MaxQueryQueue != 0 {
		e.MaxQueryQueue = other.MaxQueryQueue
	}
	if other.MaxConcurrentQueriesPerClient != 0 {
		e.MaxConcurrentQueriesPerClient = other.MaxConcurrentQueriesPerClient
	}
	if other.MaxOpenSegmentsGlobal != 0 {
		e.MaxOpenSegmentsGlobal = other.MaxOpenSegmentsGlobal
	}
	if other.MaxOpenSegmentsPerQuery != 0 {
		e.MaxOpenSegmentsPerQuery = other.MaxOpenSegmentsPerQuery
	}
	if other.QueryTimeoutMs != 0 {
		e.QueryTimeoutMs = other.QueryTimeoutMs
	}
	if other.CompactionOverdueSegments != 0 {
		e.CompactionOverdueSegments = other.CompactionOverdueSegments
	}
	if other.CompactionOverdueTombstones != 0 {
		e.CompactionOverdueTombstones = other.CompactionOverdueTombstones
	}
	if other.CompactionMaxRetries != 0 {
		e.CompactionMaxRetries = other.CompactionMaxRetries
	}
	if other.RetainSnapshotsMin != 0 {
		e.RetainSnapshotsMin = other.RetainSnapshotsMin
	}
	if other.RetainSnapshotsMinAgeSecs != 0 {
		e.RetainSnapshotsMinAgeSecs = other.RetainSnapshotsMinAgeSecs
	}
	if other.GCSafetyMarginMs != 0 {
		e.GCSafetyMarginMs = other.GCSafetyMarginMs
	}
	if other.MaxRequestBytes != 0 {
		e.MaxRequestBytes = other.MaxRequestBytes
	}
	if other.MaxResponseBytes != 0 {
		e.MaxResponseBytes = other.MaxResponseBytes
	}
	if other.IdleTimeoutSecs != 0 {
		e.IdleTimeoutSecs = other.IdleTimeoutSecs
	}
	if other.SyncDebounceMs != 0 {
		e.SyncDebounceMs = other.SyncDebounceMs
	}
	if other.EmbedMaxRetries != 0 {
		e.EmbedMaxRetries = other.EmbedMaxRetries
	}
	if other.EmbedSlots != 0 {
		e.EmbedSlots = other.EmbedSlots
	}
	if other.EmbedSlotTTLSecs != 0 {
		e.EmbedSlotTTLSecs = other.EmbedSlotTTLSecs
	}
}

// mergeRanking merges other's non-zero fields into r.
func mergeRanking(r *RankingConfig, other RankingConfig) {
	for mode, w := range other.ModeWeights {
		if r.ModeWeights == nil {
			r.ModeWeights = map[string]BucketWeights{}
		}
		r.ModeWeights[mode] = w
	}
	if other.StructuralMultiplier != 0 {
		r.StructuralMultiplier = other.StructuralMultiplier
	}
	if other.TestPathMultiplier != 0 {
		r.TestPathMultiplier = other.TestPathMultiplier
	}
	if other.DocsMultiplier != 0 {
		r.DocsMultiplier = other.DocsMultiplier
	}
	if other.GraphMultiplier != 0 {
		r.GraphMultiplier = other.GraphMultiplier
	}
}

// applyEnvOverrides applies GGREP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GGREP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// GGREP_EMBEDDER is an alias for GGREP_EMBEDDINGS_PROVIDER.
	if v := os.Getenv("GGREP_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("GGREP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("GGREP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("GGREP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("GGREP_MAX_CONCURRENT_QUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.MaxConcurrentQueries = n
		}
	}
	if v := os.Getenv("GGREP_QUERY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.QueryTimeoutMs = n
		}
	}
	if v := os.Getenv("GGREP_RETAIN_SNAPSHOTS_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Engine.RetainSnapshotsMin = n
		}
	}
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}

	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}

	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for .git directory or .ggrep.yaml/.yml file by walking up the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".ggrep.yaml")) ||
			fileExists(filepath.Join(currentDir, ".ggrep.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"} // Next.js, etc.

	var found []string

	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}

	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string

	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break // Only add one README
		}
	}

	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
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

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}

	// Empty string allowed; it selects the static embedder.
	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"static": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', or empty (static), got %s", c.Embeddings.Provider)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	if c.Engine.MaxConcurrentQueries < 0 {
		return fmt.Errorf("engine.max_concurrent_queries must be non-negative, got %d", c.Engine.MaxConcurrentQueries)
	}
	if c.Engine.RetainSnapshotsMin < 0 {
		return fmt.Errorf("engine.retain_snapshots_min must be non-negative, got %d", c.Engine.RetainSnapshotsMin)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Performance.SQLiteCacheMB == 0 {
		c.Performance.SQLiteCacheMB = defaults.Performance.SQLiteCacheMB
		added = append(added, "performance.sqlite_cache_mb")
	}
	if c.Engine.MaxConcurrentQueries == 0 {
		c.Engine.MaxConcurrentQueries = defaults.Engine.MaxConcurrentQueries
		added = append(added, "engine.max_concurrent_queries")
	}
	if c.Engine.RetainSnapshotsMin == 0 {
		c.Engine.RetainSnapshotsMin = defaults.Engine.RetainSnapshotsMin
		added = append(added, "engine.retain_snapshots_min")
	}
	if len(c.Ranking.ModeWeights) == 0 {
		c.Ranking.ModeWeights = defaults.Ranking.ModeWeights
		added = append(added, "ranking.mode_weights")
	}
	if c.Ranking.StructuralMultiplier == 0 {
		c.Ranking.StructuralMultiplier = defaults.Ranking.StructuralMultiplier
		added = append(added, "ranking.structural_multiplier")
	}

	return added
}
