// Package persist snapshotea y restaura el estado de los componentes del core
// a un único registro durable en disco: claves, nonces, cadena de auditoría y
// buffer del receiver, cada sección independientemente round-trippable.
//
// La sección de claves va cifrada con la clave maestra (secretbox); el resto
// es JSON plano. La escritura es atómica (temp + rename).
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/audit"
	"github.com/dropDatabas3/insightbridge/internal/keystore"
	"github.com/dropDatabas3/insightbridge/internal/metrics"
	"github.com/dropDatabas3/insightbridge/internal/nonce"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
	"github.com/dropDatabas3/insightbridge/internal/receiver"
	"github.com/dropDatabas3/insightbridge/internal/security/secretbox"
)

// ErrCorruptSnapshot indica un snapshot presente pero malformado. No se
// descarta en silencio: el caller decide si arranca fresco o aborta.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

const stateVersion = 1

// State es el registro durable. Toda sección es opcional: la ausencia de una
// no bloquea la carga de las otras.
type State struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	// Keys es secretbox(JSON de []keystore.ExportedKey): las privadas no
	// tocan disco en claro.
	Keys string `json:"keys,omitempty"`

	Nonces   []nonce.Record          `json:"nonces,omitempty"`
	Chain    []audit.Entry           `json:"chain,omitempty"`
	Receiver *receiver.ExportedState `json:"receiver,omitempty"`
}

// Manager serializa/deserializa los componentes. No es dueño de ninguno:
// los toma prestados en los bordes (startup, shutdown, checkpoints).
type Manager struct {
	path  string
	keys  *keystore.Store
	guard nonce.Guard
	chain *audit.Chain
	recv  *receiver.Receiver

	log *zap.Logger
}

func NewManager(path string, ks *keystore.Store, guard nonce.Guard, chain *audit.Chain, recv *receiver.Receiver) *Manager {
	return &Manager{
		path:  path,
		keys:  ks,
		guard: guard,
		chain: chain,
		recv:  recv,
		log:   logger.Named("persist"),
	}
}

// Snapshot escribe el estado actual de los cuatro componentes, atómicamente.
func (m *Manager) Snapshot(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.SnapshotDuration)
	defer timer.ObserveDuration()

	st := State{Version: stateVersion, CreatedAt: time.Now().UTC()}

	keysJSON, err := json.Marshal(m.keys.Export())
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}
	st.Keys, err = secretbox.Encrypt(keysJSON)
	if err != nil {
		return fmt.Errorf("encrypt keys: %w", err)
	}

	st.Nonces, err = m.guard.Export(ctx)
	if err != nil {
		return fmt.Errorf("export nonces: %w", err)
	}
	st.Chain = m.chain.Export()
	recvState := m.recv.Export()
	st.Receiver = &recvState

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := atomicWriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	m.log.Info("snapshot written",
		zap.String("path", m.path),
		zap.Int("nonces", len(st.Nonces)),
		zap.Int("chain_entries", len(st.Chain)),
		zap.Int("buffered_messages", len(recvState.Messages)),
	)
	return nil
}

// Restore lee el snapshot y lo aplica a los componentes. Retorna false si no
// hay estado previo (el caller inicializa fresco). Un snapshot presente pero
// malformado retorna ErrCorruptSnapshot sin aplicar nada.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	timer := prometheus.NewTimer(metrics.SnapshotDuration)
	defer timer.ObserveDuration()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Info("no snapshot: starting fresh", zap.String("path", m.path))
			return false, nil
		}
		return false, fmt.Errorf("read snapshot: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if st.Version != stateVersion {
		return false, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, st.Version)
	}

	// Decodificar todo antes de aplicar nada: un snapshot corrupto no deja
	// los componentes a medio restaurar.
	var keys []keystore.ExportedKey
	if st.Keys != "" {
		keysJSON, err := secretbox.Decrypt(st.Keys)
		if err != nil {
			return false, fmt.Errorf("%w: keys section: %v", ErrCorruptSnapshot, err)
		}
		if err := json.Unmarshal(keysJSON, &keys); err != nil {
			return false, fmt.Errorf("%w: keys section: %v", ErrCorruptSnapshot, err)
		}
	}

	if st.Keys != "" {
		if err := m.keys.Import(keys); err != nil {
			return false, fmt.Errorf("%w: keys section: %v", ErrCorruptSnapshot, err)
		}
	}
	if st.Nonces != nil {
		if err := m.guard.Import(ctx, st.Nonces); err != nil {
			return false, fmt.Errorf("import nonces: %w", err)
		}
	}
	if st.Chain != nil {
		m.chain.Import(st.Chain)
		if !m.chain.VerifyIntegrity() {
			m.log.Warn("restored audit chain fails integrity check")
		}
	}
	if st.Receiver != nil {
		m.recv.Import(*st.Receiver)
	}

	m.log.Info("snapshot restored",
		zap.String("path", m.path),
		zap.Time("created_at", st.CreatedAt),
		zap.Int("keys", len(keys)),
		zap.Int("nonces", len(st.Nonces)),
		zap.Int("chain_entries", len(st.Chain)),
	)
	return true, nil
}
