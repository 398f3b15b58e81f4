package position

import (
	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/cache"
	"github.com/swindlechess/swindler/zobrist"
)

// Cache memoizes Data per normalized FEN.
type Cache struct {
	objects *cache.Cache[string, *Data]
	zobrist *zobrist.Zobrist
}

func NewCache(size int) (*Cache, error) {
	objects, err := cache.New[string, *Data]("position", size)
	if err != nil {
		return nil, err
	}
	return &Cache{objects: objects, zobrist: zobrist.New()}, nil
}

// Get returns the data for fen, computing it on first use. The FEN is
// made canonical first, so neither move counters nor a dead en-passant
// square split the cache.
func (c *Cache) Get(fen string) (*Data, error) {
	fen, err := Canonical(fen)
	if err != nil {
		return nil, err
	}
	return cache.Load(c.objects, fen, func(fen string) (*Data, error) {
		log.Trace().Str("fen", fen).Msg("computing-position-data")
		return newData(fen, c.zobrist.Hash)
	})
}

func (c *Cache) Stats() cache.Stats {
	return c.objects.Stats()
}
