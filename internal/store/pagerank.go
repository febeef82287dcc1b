package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/codeatlas/codeatlas/internal/model"
)

// rankBatchSize bounds the members written per round trip.
const rankBatchSize = 500

// SetPageRanks clears and rewrites the sorted set in bounded batches and
// mirrors each score into the symbol hash's pageRank field. A batch failure
// is returned as-is; the caller retries the whole rewrite.
func (s *Store) SetPageRanks(ctx context.Context, ranks map[string]float64) error {
	if err := s.rdb.Del(ctx, s.key("pagerank")).Err(); err != nil {
		return fmt.Errorf("clear pagerank: %w", err)
	}

	batch := make([]redis.Z, 0, rankBatchSize)
	ids := make([]string, 0, rankBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		pipe := s.rdb.TxPipeline()
		pipe.ZAdd(ctx, s.key("pagerank"), batch...)
		for i, id := range ids {
			pipe.HSet(ctx, s.key("symbol:"+id), "pageRank",
				strconv.FormatFloat(batch[i].Score, 'g', -1, 64))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("write pagerank batch: %w", err)
		}
		batch = batch[:0]
		ids = ids[:0]
		return nil
	}

	for id, score := range ranks {
		batch = append(batch, redis.Z{Member: id, Score: score})
		ids = append(ids, id)
		if len(batch) >= rankBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// GetPageRank returns 0 for unranked symbols.
func (s *Store) GetPageRank(ctx context.Context, id string) (float64, error) {
	score, err := s.rdb.ZScore(ctx, s.key("pagerank"), id).Result()
	if err == redis.Nil {
		return 0, nil
	}
	return score, err
}

// RankedSymbol pairs a symbol with its stored rank.
type RankedSymbol struct {
	Symbol *model.Symbol `json:"symbol"`
	Score  float64       `json:"score"`
}

// TopSymbols returns the n highest-ranked symbols in decreasing order.
func (s *Store) TopSymbols(ctx context.Context, n int) ([]RankedSymbol, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key("pagerank"), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	ranked := make([]RankedSymbol, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		sym, err := s.GetSymbol(ctx, id)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue // deleted between rank write and read
		}
		ranked = append(ranked, RankedSymbol{Symbol: sym, Score: z.Score})
	}
	return ranked, nil
}

// AllPageRanks loads the whole sorted set as a map.
func (s *Store) AllPageRanks(ctx context.Context) (map[string]float64, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, s.key("pagerank"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ranks := make(map[string]float64, len(zs))
	for _, z := range zs {
		if id, ok := z.Member.(string); ok {
			ranks[id] = z.Score
		}
	}
	return ranks, nil
}
