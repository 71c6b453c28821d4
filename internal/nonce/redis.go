package nonce

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/insightbridge/internal/metrics"
)

// Redis es la guarda distribuida: SetNX con TTL hace el check-and-record en
// una sola operación del lado del server. El valor guardado es el instante de
// primer uso (RFC3339Nano) para poder exportar la ventana restante.
type Redis struct {
	c      *rdb.Client
	prefix string
	maxAge time.Duration
}

func NewRedis(addr string, db int, prefix string, maxAge time.Duration) *Redis {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if prefix == "" {
		prefix = "nonce:"
	}
	return &Redis{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
		maxAge: maxAge,
	}
}

func (r *Redis) key(value string) string { return r.prefix + value }

func (r *Redis) CheckAndAccept(ctx context.Context, value string) (bool, error) {
	first := time.Now().UTC().Format(time.RFC3339Nano)
	ok, err := r.c.SetNX(ctx, r.key(value), first, r.maxAge).Result()
	if err != nil {
		return false, fmt.Errorf("nonce setnx: %w", err)
	}
	if ok {
		metrics.NonceAccepted.Inc()
	} else {
		metrics.NonceReplays.Inc()
	}
	return ok, nil
}

func (r *Redis) Export(ctx context.Context) ([]Record, error) {
	var recs []Record
	iter := r.c.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		v, err := r.c.Get(ctx, k).Result()
		if err != nil {
			if err == rdb.Nil {
				continue // expiró entre scan y get
			}
			return nil, fmt.Errorf("nonce get %s: %w", k, err)
		}
		first, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			continue
		}
		recs = append(recs, Record{Value: strings.TrimPrefix(k, r.prefix), FirstSeen: first})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("nonce scan: %w", err)
	}
	return recs, nil
}

func (r *Redis) Import(ctx context.Context, recs []Record) error {
	now := time.Now().UTC()
	pipe := r.c.Pipeline()
	for _, rec := range recs {
		remaining := r.maxAge - now.Sub(rec.FirstSeen)
		if remaining <= 0 {
			continue
		}
		pipe.SetNX(ctx, r.key(rec.Value), rec.FirstSeen.Format(time.RFC3339Nano), remaining)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nonce import: %w", err)
	}
	return nil
}

// Close cierra la conexión.
func (r *Redis) Close() error { return r.c.Close() }
