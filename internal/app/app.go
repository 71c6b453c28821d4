package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/insightbridge/internal/audit"
	"github.com/dropDatabas3/insightbridge/internal/config"
	"github.com/dropDatabas3/insightbridge/internal/keystore"
	"github.com/dropDatabas3/insightbridge/internal/metrics"
	"github.com/dropDatabas3/insightbridge/internal/nonce"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
	"github.com/dropDatabas3/insightbridge/internal/persist"
	"github.com/dropDatabas3/insightbridge/internal/receiver"
	"github.com/dropDatabas3/insightbridge/internal/token"
)

// Container agrupa los componentes ya cableados del servicio.
type Container struct {
	Cfg      *config.Config
	Keys     *keystore.Store
	Tokens   *token.Service
	Nonces   nonce.Guard
	Chain    *audit.Chain
	Receiver *receiver.Receiver
	Persist  *persist.Manager
	Registry *prometheus.Registry

	log *zap.Logger
}

// Status agrega el estado observable del servicio.
type Status struct {
	ChainLength   int             `json:"chain_length"`
	LastHash      string          `json:"last_hash"`
	ChainValid    bool            `json:"chain_valid"`
	TotalMessages int             `json:"total_messages"`
	Buffer        receiver.Status `json:"buffer"`
	KeyIDs        []string        `json:"key_ids"`
}

// New construye los componentes, restaura el snapshot previo (si existe)
// y genera las claves de bootstrap que falten.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.Named("app")

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	ks := keystore.New()

	var guard nonce.Guard
	switch cfg.Nonce.Kind {
	case "redis":
		guard = nonce.NewRedis(cfg.Nonce.Redis.Addr, cfg.Nonce.Redis.DB, cfg.Nonce.Redis.Prefix, cfg.NonceMaxAge())
	case "memory":
		guard = nonce.NewMemory(cfg.NonceMaxAge())
	default:
		return nil, fmt.Errorf("nonce.kind desconocido: %q", cfg.Nonce.Kind)
	}

	chain := audit.NewChain()

	recv := receiver.New(receiver.Options{
		Capacity:     cfg.Receiver.Capacity,
		WarnRatio:    cfg.Receiver.WarnRatio,
		CorruptField: cfg.Receiver.CorruptField,
	})

	pm := persist.NewManager(cfg.Persistence.Path, ks, guard, chain, recv)

	restored, err := pm.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if restored {
		log.Info("estado restaurado desde snapshot",
			zap.String("path", cfg.Persistence.Path),
			zap.Int("chain_length", chain.Len()),
			zap.Int("keys", len(ks.IDs())))
	}

	for _, kid := range cfg.Keys.Bootstrap {
		if ks.Has(kid) {
			continue
		}
		if _, err := ks.Generate(kid); err != nil {
			return nil, fmt.Errorf("bootstrap de clave %q: %w", kid, err)
		}
		log.Info("clave de bootstrap generada", zap.String("kid", kid))
	}

	ts, err := token.NewService(ks, cfg.Token.KeyID)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	return &Container{
		Cfg:      cfg,
		Keys:     ks,
		Tokens:   ts,
		Nonces:   guard,
		Chain:    chain,
		Receiver: recv,
		Persist:  pm,
		Registry: reg,
		log:      log,
	}, nil
}

// Status calcula el estado agregado actual.
func (c *Container) Status() Status {
	buf := c.Receiver.Status()
	return Status{
		ChainLength:   c.Chain.Len(),
		LastHash:      c.Chain.LastHash(),
		ChainValid:    c.Chain.VerifyIntegrity(),
		TotalMessages: buf.BufferLength,
		Buffer:        buf,
		KeyIDs:        c.Keys.IDs(),
	}
}

// Run bloquea hasta que ctx se cancele. Si hay checkpoint_interval > 0,
// corre snapshots periódicos en paralelo. Al salir hace el snapshot final.
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if interval := c.Cfg.CheckpointInterval(); interval > 0 {
		g.Go(func() error {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if err := c.Persist.Snapshot(gctx); err != nil {
						c.log.Error("checkpoint fallido", zap.Error(err))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()

	// snapshot final con contexto propio: el de Run ya está cancelado
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := c.Persist.Snapshot(sctx); serr != nil {
		c.log.Error("snapshot de cierre fallido", zap.Error(serr))
		if err == nil {
			err = serr
		}
	}
	return err
}

// LogMetrics vuelca los contadores acumulados al log. Sin exposición HTTP,
// este es el registro de cierre de un run.
func (c *Container) LogMetrics() {
	mfs, err := c.Registry.Gather()
	if err != nil {
		c.log.Warn("metrics gather", zap.Error(err))
		return
	}
	for _, mf := range mfs {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		c.log.Info("metric", zap.String("name", mf.GetName()), zap.Float64("value", total))
	}
}

// Close libera recursos externos (conexión redis si aplica).
func (c *Container) Close() error {
	if closer, ok := c.Nonces.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
