// Package audit implementa la cadena de auditoría: un log append-only donde
// cada entrada compromete criptográficamente a su predecesora. Alterar una
// entrada persistida rompe el encadenamiento y VerifyIntegrity lo detecta.
//
// El hash se computa sobre el encoding JSON canónico de
// {index, timestamp, payload, prev_hash}. El payload se normaliza con un
// round-trip por encoding/json (maps con keys ordenadas, números como
// float64), así el mismo payload produce siempre los mismos bytes — también
// después de un restore.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/metrics"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
)

// GenesisHash es el prev_hash de la entrada 0 y el LastHash de una cadena vacía.
var GenesisHash = strings.Repeat("0", 64)

// ErrInvalidPayload indica un payload que no se puede serializar a JSON.
var ErrInvalidPayload = errors.New("payload not serializable")

// Entry es una entrada comprometida de la cadena. Inmutable una vez agregada.
type Entry struct {
	Index     int            `json:"index"`
	Timestamp int64          `json:"timestamp"` // unix nanos: estable en el round-trip JSON
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// Chain es la cadena en memoria. Seguro para uso concurrente.
type Chain struct {
	mu      sync.RWMutex
	entries []Entry
	log     *zap.Logger
}

func NewChain() *Chain {
	return &Chain{log: logger.Named("audit")}
}

// hashDoc fija el orden de los campos que entran al digest.
type hashDoc struct {
	Index     int            `json:"index"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
}

func entryHash(index int, ts int64, payload map[string]any, prevHash string) (string, error) {
	b, err := json.Marshal(hashDoc{Index: index, Timestamp: ts, Payload: payload, PrevHash: prevHash})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalPayload normaliza el payload vía round-trip JSON.
func canonicalPayload(payload map[string]any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// Append agrega una entrada y retorna su hash.
func (c *Chain) Append(payload map[string]any) (string, error) {
	p, err := canonicalPayload(payload)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	index := len(c.entries)
	prev := GenesisHash
	if index > 0 {
		prev = c.entries[index-1].Hash
	}
	ts := time.Now().UTC().UnixNano()

	h, err := entryHash(index, ts, p, prev)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	c.entries = append(c.entries, Entry{
		Index:     index,
		Timestamp: ts,
		Payload:   p,
		PrevHash:  prev,
		Hash:      h,
	})

	metrics.AuditAppends.Inc()
	c.log.Debug("entry appended", zap.Int("index", index), zap.String("hash", h))
	return h, nil
}

// LastHash retorna el hash de la última entrada, o el sentinel génesis.
func (c *Chain) LastHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return GenesisHash
	}
	return c.entries[len(c.entries)-1].Hash
}

// Len retorna la cantidad de entradas.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries retorna un snapshot deep-copy en orden de append.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyEntries(c.entries)
}

// VerifyIntegrity recomputa cada hash y confirma el encadenamiento.
// false significa que la cadena persistida fue alterada por fuera.
func (c *Chain) VerifyIntegrity() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prev := GenesisHash
	for i, e := range c.entries {
		if e.Index != i || e.PrevHash != prev {
			return false
		}
		h, err := entryHash(e.Index, e.Timestamp, e.Payload, e.PrevHash)
		if err != nil || h != e.Hash {
			return false
		}
		prev = e.Hash
	}
	return true
}

// Export retorna la cadena completa para persistencia.
func (c *Chain) Export() []Entry {
	return c.Entries()
}

// Import reemplaza la cadena con entradas persistidas, tal cual. La
// verificación queda en el caller (VerifyIntegrity): una cadena alterada debe
// poder cargarse para ser inspeccionada.
func (c *Chain) Import(entries []Entry) {
	c.mu.Lock()
	c.entries = copyEntries(entries)
	c.mu.Unlock()
}

func copyEntries(src []Entry) []Entry {
	out := make([]Entry, len(src))
	for i, e := range src {
		cp := e
		if e.Payload != nil {
			// deep copy vía JSON: el payload ya es canónico
			if p, err := canonicalPayload(e.Payload); err == nil {
				cp.Payload = p
			}
		}
		out[i] = cp
	}
	return out
}
