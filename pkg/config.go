package hashledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-ini/ini"
)

// Config represents the hashledger configuration
type Config struct {
	configPath string
	ini        *ini.File
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Default string // Hash algorithm: md5, sha1, sha256, sha512
	Buffer  string // Read buffer size, human readable ("80K")
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // 0=quiet, 1=basic, 2=detailed, 3=trace
	Debug string // Comma-separated debug flags
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	Workers int // Worker goroutines, 0 runs everything on the calling goroutine
}

// LedgerConfig represents ledger maintenance configuration
type LedgerConfig struct {
	Existing       string // nothing, check, update
	RemoveOld      bool   // Prune entries whose files are gone
	FlushThreshold int    // Pending changes tolerated before a mid-run save
}

// ScanConfig represents path discovery configuration
type ScanConfig struct {
	IncludeDotFiles bool
	Symlinks        string   // all, contained, none
	Ignore          []string // Regular expressions matched against relative paths
	IgnoreFile      string   // File holding one regular expression per line
	OnError         string   // abort, continue
}

// OutputConfig represents output format configuration
type OutputConfig struct {
	Format string // human, json
}

// AllConfig represents all configuration options
type AllConfig struct {
	Hash        *HashConfig
	Verbose     *VerboseConfig
	Performance *PerformanceConfig
	Ledger      *LedgerConfig
	Scan        *ScanConfig
	Output      *OutputConfig
}

// DefaultConfigPath returns the per-user config file location
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, ConfigDirName, ConfigFileName)
}

// LoadConfig loads configuration from configPath. An empty configPath falls back to the
// per-user config file, and a missing default file yields built-in defaults.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath()
	}

	cfg := &Config{configPath: configPath}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file %s does not exist", configPath)
		}
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	cfg.ini = iniFile

	return cfg, nil
}

// setDefaults populates an empty ini file with the default configuration
func (c *Config) setDefaults() error {
	defaults := []struct {
		section, key, value string
	}{
		{"filehash", "default", DefaultHashAlgorithm},
		{"filehash", "buffer", DefaultHashBuffer},
		{"verbose", "level", "0"},
		{"verbose", "debug", ""},
		{"performance", "workers", "0"},
		{"ledger", "existing", "nothing"},
		{"ledger", "remove_old", "false"},
		{"ledger", "flush_threshold", fmt.Sprintf("%d", DefaultFlushThreshold)},
		{"scan", "include_dot_files", "false"},
		{"scan", "symlinks", SymlinksAll},
		{"scan", "ignore", ""},
		{"scan", "ignore_file", ""},
		{"scan", "on_error", "abort"},
		{"output", "format", "human"},
	}

	for _, d := range defaults {
		section := c.ini.Section(d.section)
		if _, err := section.NewKey(d.key, d.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", d.section, d.key, err)
		}
	}

	return nil
}

// Path returns the file the configuration was (or would be) loaded from
func (c *Config) Path() string {
	return c.configPath
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	hashConfig := &HashConfig{
		Default: DefaultHashAlgorithm,
		Buffer:  DefaultHashBuffer,
	}

	if c.ini.HasSection("filehash") {
		section := c.ini.Section("filehash")
		if section.HasKey("default") {
			hashConfig.Default = section.Key("default").String()
		}
		if section.HasKey("buffer") {
			if buffer := section.Key("buffer").String(); buffer != "" {
				hashConfig.Buffer = buffer
			}
		}
	}

	return hashConfig
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	verboseConfig := &VerboseConfig{}

	if c.ini.HasSection("verbose") {
		section := c.ini.Section("verbose")
		if section.HasKey("level") {
			if level, err := section.Key("level").Int(); err == nil {
				verboseConfig.Level = level
			}
		}
		if section.HasKey("debug") {
			verboseConfig.Debug = section.Key("debug").String()
		}
	}

	return verboseConfig
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	performanceConfig := &PerformanceConfig{}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("workers") {
			if workers, err := section.Key("workers").Int(); err == nil {
				performanceConfig.Workers = workers
			}
		}
	}

	return performanceConfig
}

// GetLedgerConfig returns the ledger configuration
func (c *Config) GetLedgerConfig() *LedgerConfig {
	ledgerConfig := &LedgerConfig{
		Existing:       "nothing",
		FlushThreshold: DefaultFlushThreshold,
	}

	if c.ini.HasSection("ledger") {
		section := c.ini.Section("ledger")
		if section.HasKey("existing") {
			ledgerConfig.Existing = section.Key("existing").String()
		}
		if section.HasKey("remove_old") {
			if removeOld, err := section.Key("remove_old").Bool(); err == nil {
				ledgerConfig.RemoveOld = removeOld
			}
		}
		if section.HasKey("flush_threshold") {
			if threshold, err := section.Key("flush_threshold").Int(); err == nil {
				ledgerConfig.FlushThreshold = threshold
			}
		}
	}

	return ledgerConfig
}

// GetScanConfig returns the path discovery configuration
func (c *Config) GetScanConfig() *ScanConfig {
	scanConfig := &ScanConfig{
		Symlinks: SymlinksAll,
		OnError:  "abort",
	}

	if c.ini.HasSection("scan") {
		section := c.ini.Section("scan")
		if section.HasKey("include_dot_files") {
			if include, err := section.Key("include_dot_files").Bool(); err == nil {
				scanConfig.IncludeDotFiles = include
			}
		}
		if section.HasKey("symlinks") {
			scanConfig.Symlinks = section.Key("symlinks").String()
		}
		if section.HasKey("ignore") {
			for _, pattern := range section.Key("ignore").Strings(",") {
				if pattern != "" {
					scanConfig.Ignore = append(scanConfig.Ignore, pattern)
				}
			}
		}
		if section.HasKey("ignore_file") {
			scanConfig.IgnoreFile = section.Key("ignore_file").String()
		}
		if section.HasKey("on_error") {
			scanConfig.OnError = section.Key("on_error").String()
		}
	}

	return scanConfig
}

// GetOutputConfig returns the output configuration
func (c *Config) GetOutputConfig() *OutputConfig {
	outputConfig := &OutputConfig{Format: "human"}

	if c.ini.HasSection("output") {
		section := c.ini.Section("output")
		if section.HasKey("format") {
			outputConfig.Format = section.Key("format").String()
		}
	}

	return outputConfig
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Hash:        c.GetHashConfig(),
		Verbose:     c.GetVerboseConfig(),
		Performance: c.GetPerformanceConfig(),
		Ledger:      c.GetLedgerConfig(),
		Scan:        c.GetScanConfig(),
		Output:      c.GetOutputConfig(),
	}
}

// SaveTo writes the configuration to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return c.ini.SaveTo(path)
}

// overrideKeys maps override keys onto their ini section and key
var overrideKeys = map[string][2]string{
	"hash":              {"filehash", "default"},
	"hash_buffer":       {"filehash", "buffer"},
	"level":             {"verbose", "level"},
	"debug":             {"verbose", "debug"},
	"workers":           {"performance", "workers"},
	"existing":          {"ledger", "existing"},
	"remove_old":        {"ledger", "remove_old"},
	"flush_threshold":   {"ledger", "flush_threshold"},
	"include_dot_files": {"scan", "include_dot_files"},
	"symlinks":          {"scan", "symlinks"},
	"ignore":            {"scan", "ignore"},
	"on_error":          {"scan", "on_error"},
	"format":            {"output", "format"},
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "hash:sha256", "workers:4", "existing:check", "debug:ledger,engine"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		target, ok := overrideKeys[key]
		if !ok {
			return fmt.Errorf("unsupported override key '%s'", key)
		}
		c.ini.Section(target[0]).Key(target[1]).SetValue(value)
	}

	return nil
}

// Validate validates every configuration option
func (c *Config) Validate() error {
	all := c.GetAllConfig()

	if err := ValidateHashAlgorithm(all.Hash.Default); err != nil {
		return err
	}
	if _, err := ParseHumanSize(all.Hash.Buffer); err != nil {
		return fmt.Errorf("invalid hash buffer: %w", err)
	}
	if err := ValidateVerboseLevel(all.Verbose.Level); err != nil {
		return err
	}
	if err := ValidateWorkers(all.Performance.Workers); err != nil {
		return err
	}
	if err := ValidateExistingPolicy(all.Ledger.Existing); err != nil {
		return err
	}
	if err := ValidateFlushThreshold(all.Ledger.FlushThreshold); err != nil {
		return err
	}
	if err := ValidateSymlinkMode(all.Scan.Symlinks); err != nil {
		return err
	}
	if err := ValidateErrorPolicy(all.Scan.OnError); err != nil {
		return err
	}
	if err := ValidateOutputFormat(all.Output.Format); err != nil {
		return err
	}

	return nil
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	switch strings.ToLower(algorithm) {
	case "md5", "sha1", "sha256", "sha512":
		return nil
	default:
		return fmt.Errorf("unsupported hash algorithm: %s (supported: md5, sha1, sha256, sha512)", algorithm)
	}
}

// ValidateOutputFormat validates that an output format is supported
func ValidateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case "human", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json)", format)
	}
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateSymlinkMode validates that a symlink mode is supported
func ValidateSymlinkMode(mode string) error {
	switch strings.ToLower(mode) {
	case SymlinksAll, SymlinksContained, SymlinksNone:
		return nil
	default:
		return fmt.Errorf("unsupported symlink mode: %s (supported: all, contained, none)", mode)
	}
}

// ValidateWorkers validates the worker count; 0 disables the pool
func ValidateWorkers(workers int) error {
	if workers < 0 {
		return fmt.Errorf("workers must not be negative, got: %d", workers)
	}
	if workers > 256 {
		return fmt.Errorf("workers should not exceed 256, got: %d", workers)
	}
	return nil
}

// ValidateExistingPolicy validates an existing-file policy name
func ValidateExistingPolicy(policy string) error {
	if _, ok := ParseExistingPolicy(policy); !ok {
		return fmt.Errorf("unsupported existing-file policy: %s (supported: nothing, check, update)", policy)
	}
	return nil
}

// ValidateErrorPolicy validates an error policy name
func ValidateErrorPolicy(policy string) error {
	if _, ok := ParseErrorPolicy(policy); !ok {
		return fmt.Errorf("unsupported error policy: %s (supported: abort, continue)", policy)
	}
	return nil
}

// ValidateFlushThreshold validates the opportunistic flush threshold
func ValidateFlushThreshold(threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("flush threshold must not be negative, got: %d", threshold)
	}
	return nil
}
