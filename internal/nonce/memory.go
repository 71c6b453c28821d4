package nonce

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/insightbridge/internal/metrics"
)

// Memory es la guarda in-process. go-cache hace el sweep de vencidos con su
// janitor; Add es atómico bajo el lock interno del cache, así que dos llamadas
// concurrentes con el mismo valor nunca retornan true las dos.
type Memory struct {
	maxAge time.Duration
	c      *gocache.Cache
}

func NewMemory(maxAge time.Duration) *Memory {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Memory{maxAge: maxAge, c: gocache.New(maxAge, time.Minute)}
}

func (m *Memory) CheckAndAccept(ctx context.Context, value string) (bool, error) {
	if err := m.c.Add(value, time.Now().UTC(), gocache.DefaultExpiration); err != nil {
		metrics.NonceReplays.Inc()
		return false, nil
	}
	metrics.NonceAccepted.Inc()
	return true, nil
}

func (m *Memory) Export(ctx context.Context) ([]Record, error) {
	items := m.c.Items() // omite vencidos
	recs := make([]Record, 0, len(items))
	for v, item := range items {
		first, ok := item.Object.(time.Time)
		if !ok {
			continue
		}
		recs = append(recs, Record{Value: v, FirstSeen: first})
	}
	return recs, nil
}

func (m *Memory) Import(ctx context.Context, recs []Record) error {
	now := time.Now().UTC()
	for _, r := range recs {
		remaining := m.maxAge - now.Sub(r.FirstSeen)
		if remaining <= 0 {
			continue
		}
		m.c.Set(r.Value, r.FirstSeen, remaining)
	}
	return nil
}
