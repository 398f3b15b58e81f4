package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigSyzygyScript        = "syzygy-script"
	ConfigSyzygyPath          = "syzygy-path"
	ConfigGaviotaScript       = "gaviota-script"
	ConfigGaviotaPath         = "gaviota-path"
	ConfigLc0Path             = "lc0-path"
	ConfigMaiaWeightsPath     = "maia-weights-path"
	ConfigMaiaElo             = "maia-elo"
	ConfigCacheSize           = "cache-size"
	ConfigCacheMemoryFraction = "cache-memory-fraction"
	ConfigMaiaCutoff          = "maia-cutoff"
	ConfigMaxPieces           = "max-pieces"
	ConfigDTMMaxPieces        = "dtm-max-pieces"
	ConfigSafeDrawCutoff      = "safe-draw-cutoff"
	ConfigParallelism         = "parallelism"
	ConfigSearchDepth         = "search-depth"
	ConfigOutputFormat        = "output-format"
	ConfigPlayoutGames        = "playout-games"
	ConfigPlayoutMaxPlies     = "playout-max-plies"
	ConfigPlayoutThreads      = "playout-threads"
	ConfigGamelogPath         = "gamelog-path"
	ConfigLogLevel            = "log-level"
	ConfigConfigFile          = "config-file"
)

// Config wraps a viper instance. Values come, in increasing priority, from
// the defaults below, an optional config file, SWINDLER_* environment
// variables and command-line flags.
type Config struct {
	*viper.Viper

	args []string
}

func DefaultConfig() *Config {
	c := &Config{Viper: viper.New()}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	c.SetDefault(ConfigSyzygyScript, "./scripts/syzygy_fens.py")
	c.SetDefault(ConfigSyzygyPath, "./data/syzygy")
	c.SetDefault(ConfigGaviotaScript, "./scripts/gaviota_fens.py")
	c.SetDefault(ConfigGaviotaPath, "./data/gaviota")
	c.SetDefault(ConfigLc0Path, "lc0")
	c.SetDefault(ConfigMaiaWeightsPath, "./data/maia-weights")
	c.SetDefault(ConfigMaiaElo, 1500)
	c.SetDefault(ConfigCacheSize, 10000000)
	c.SetDefault(ConfigCacheMemoryFraction, 0.05)
	c.SetDefault(ConfigMaiaCutoff, 0.05)
	c.SetDefault(ConfigMaxPieces, 7)
	c.SetDefault(ConfigDTMMaxPieces, 5)
	c.SetDefault(ConfigSafeDrawCutoff, true)
	c.SetDefault(ConfigParallelism, runtime.NumCPU())
	c.SetDefault(ConfigSearchDepth, 1)
	c.SetDefault(ConfigOutputFormat, "text")
	c.SetDefault(ConfigPlayoutGames, 100)
	c.SetDefault(ConfigPlayoutMaxPlies, 200)
	c.SetDefault(ConfigPlayoutThreads, 2)
	c.SetDefault(ConfigGamelogPath, "")
	c.SetDefault(ConfigLogLevel, "info")
}

// Load parses the given command-line arguments on top of the defaults and
// environment. Positional arguments are kept and available through Args.
func (c *Config) Load(args []string) error {
	c.Viper = viper.New()
	c.setDefaults()

	fs := pflag.NewFlagSet("swindler", pflag.ContinueOnError)
	fs.String(ConfigSyzygyScript, c.GetString(ConfigSyzygyScript), "script answering syzygy WDL/DTZ probes")
	fs.String(ConfigSyzygyPath, c.GetString(ConfigSyzygyPath), "directory holding syzygy tablebases")
	fs.String(ConfigGaviotaScript, c.GetString(ConfigGaviotaScript), "script answering gaviota WDL/DTM probes")
	fs.String(ConfigGaviotaPath, c.GetString(ConfigGaviotaPath), "directory holding gaviota tablebases; empty disables DTM lookups")
	fs.String(ConfigLc0Path, c.GetString(ConfigLc0Path), "path to the lc0 binary")
	fs.String(ConfigMaiaWeightsPath, c.GetString(ConfigMaiaWeightsPath), "directory holding maia-<elo>.pb.gz weights")
	fs.Int(ConfigMaiaElo, c.GetInt(ConfigMaiaElo), "maia rating, 1100 through 1900")
	fs.Int(ConfigCacheSize, c.GetInt(ConfigCacheSize), "entries per cache; 0 sizes caches from system memory")
	fs.Float64(ConfigCacheMemoryFraction, c.GetFloat64(ConfigCacheMemoryFraction), "fraction of system memory per cache when cache-size is 0")
	fs.Float64(ConfigMaiaCutoff, c.GetFloat64(ConfigMaiaCutoff), "policy weight at or below which opponent moves are ignored")
	fs.Int(ConfigMaxPieces, c.GetInt(ConfigMaxPieces), "largest supported piece count")
	fs.Int(ConfigDTMMaxPieces, c.GetInt(ConfigDTMMaxPieces), "largest piece count queried for distance to mate")
	fs.Bool(ConfigSafeDrawCutoff, c.GetBool(ConfigSafeDrawCutoff), "stop ranking once a draw is found and we cannot win on material")
	fs.Int(ConfigParallelism, c.GetInt(ConfigParallelism), "concurrent sibling evaluations per node")
	fs.Int(ConfigSearchDepth, c.GetInt(ConfigSearchDepth), "look-ahead budget")
	fs.String(ConfigOutputFormat, c.GetString(ConfigOutputFormat), "text or yaml")
	fs.Int(ConfigPlayoutGames, c.GetInt(ConfigPlayoutGames), "number of playout games")
	fs.Int(ConfigPlayoutMaxPlies, c.GetInt(ConfigPlayoutMaxPlies), "ply limit per playout game")
	fs.Int(ConfigPlayoutThreads, c.GetInt(ConfigPlayoutThreads), "playout games run at once")
	fs.String(ConfigGamelogPath, c.GetString(ConfigGamelogPath), "sqlite file recording playout games")
	fs.String(ConfigLogLevel, c.GetString(ConfigLogLevel), "debug, info, warn or error")
	fs.String(ConfigConfigFile, "", "optional config file (yaml, toml or json)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.BindPFlags(fs); err != nil {
		return err
	}
	c.SetEnvPrefix("swindler")
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()

	if path := c.GetString(ConfigConfigFile); path != "" {
		c.SetConfigFile(path)
		if err := c.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	c.args = fs.Args()
	return nil
}

// Args returns the positional arguments left over after flag parsing.
func (c *Config) Args() []string {
	return c.args
}

// SanitizedSettings returns the settings for logging purposes.
func (c *Config) SanitizedSettings() map[string]any {
	return c.AllSettings()
}
