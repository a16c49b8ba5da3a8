package feed

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/archerdao/archerswap/internal/config"
)

// Publisher mirrors transaction lifecycle events onto a redis stream so
// out-of-process consumers (dashboards, alerting) can follow along.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{rdb: rdb, stream: cfg.Redis.Stream}
}

// Event is one lifecycle transition of a tracked transaction.
type Event struct {
	Hash    string
	ChainID uint64
	Kind    string // "added" | "finalized" | "cancelled"
	Success bool
	Summary string
	TsMs    int64
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"hash":     ev.Hash,
			"chain_id": ev.ChainID,
			"kind":     ev.Kind,
			"success":  ev.Success,
			"summary":  ev.Summary,
			"ts_ms":    ev.TsMs,
		},
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
