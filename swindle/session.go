package swindle

import (
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/cache"
	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/oracle"
	"github.com/swindlechess/swindler/position"
)

// approximate bytes per cached entry, used when sizing caches from memory.
const entrySizeEstimate = 512

// OptionsFromConfig reads the search options out of cfg.
func OptionsFromConfig(cfg *config.Config, cacheSize int) Options {
	return Options{
		Cutoff:         cfg.GetFloat64(config.ConfigMaiaCutoff),
		MaxPieces:      cfg.GetInt(config.ConfigMaxPieces),
		DTMMaxPieces:   cfg.GetInt(config.ConfigDTMMaxPieces),
		SafeDrawCutoff: cfg.GetBool(config.ConfigSafeDrawCutoff),
		Parallelism:    cfg.GetInt(config.ConfigParallelism),
		EvalCacheSize:  cacheSize,
	}
}

// CacheSize returns the per-cache capacity configured in cfg.
func CacheSize(cfg *config.Config) int {
	if n := cfg.GetInt(config.ConfigCacheSize); n > 0 {
		return n
	}
	return cache.SizeForMemory(cfg.GetFloat64(config.ConfigCacheMemoryFraction), entrySizeEstimate)
}

// NewFromConfig starts the tablebase and policy processes named in cfg
// and returns a session owning them. Dispose stops them.
func NewFromConfig(cfg *config.Config) (*Swindler, error) {
	size := CacheSize(cfg)
	positions, err := position.NewCache(size)
	if err != nil {
		return nil, err
	}

	syzygy, err := oracle.NewSyzygy(
		cfg.GetString(config.ConfigSyzygyScript),
		cfg.GetString(config.ConfigSyzygyPath),
		size)
	if err != nil {
		return nil, err
	}
	started := []io.Closer{syzygy}

	var gaviota TablebaseOracle
	var gaviotaTB *oracle.Tablebase
	if path := cfg.GetString(config.ConfigGaviotaPath); path != "" {
		gaviotaTB, err = oracle.NewGaviota(cfg.GetString(config.ConfigGaviotaScript), path, size)
		if err != nil {
			closeOracles(started)
			return nil, err
		}
		gaviota = gaviotaTB
		started = append(started, gaviotaTB)
	} else {
		log.Info().Msg("gaviota-disabled")
	}

	maia, err := oracle.NewMaia(oracle.MaiaOptions{
		Lc0Path:    cfg.GetString(config.ConfigLc0Path),
		WeightsDir: cfg.GetString(config.ConfigMaiaWeightsPath),
		Elo:        cfg.GetInt(config.ConfigMaiaElo),
		CacheSize:  size,
	}, positions)
	if err != nil {
		closeOracles(started)
		return nil, err
	}
	started = append(started, maia)

	s, err := New(OptionsFromConfig(cfg, size), positions, syzygy, gaviota, maia)
	if err != nil {
		return nil, errors.Join(err, closeOracles(started))
	}
	log.Info().
		Int("cache-size", size).
		Int("maia-elo", cfg.GetInt(config.ConfigMaiaElo)).
		Bool("gaviota", gaviotaTB != nil).
		Msg("swindler-ready")
	return s, nil
}

// closeOracles stops every started process, even if some fail to close.
func closeOracles(started []io.Closer) error {
	var errs []error
	for _, c := range started {
		errs = append(errs, c.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		log.Err(err).Msg("closing-oracles")
	}
	return err
}
