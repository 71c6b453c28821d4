// Package nonce implementa la guarda anti-replay: un valor se acepta a lo
// sumo una vez dentro de la ventana de max-age configurada.
//
// Hay dos backends, espejo del split memory/redis del cache:
//   - Memory: in-process (patrickmn/go-cache), para single-node y tests.
//   - Redis: SetNX distribuido, para despliegues con más de un worker.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// DefaultMaxAge es la ventana de validez por defecto de un nonce.
const DefaultMaxAge = 5 * time.Minute

// Record es un nonce visto con el instante de primer uso.
// Es la forma serializable para snapshot/restore.
type Record struct {
	Value     string    `json:"value"`
	FirstSeen time.Time `json:"first_seen"`
}

// Guard registra nonces de un solo uso.
type Guard interface {
	// CheckAndAccept retorna true y registra value si no fue visto dentro
	// de la ventana; false (replay) en caso contrario, sin tocar estado.
	// El paso check-then-record es atómico.
	CheckAndAccept(ctx context.Context, value string) (bool, error)

	// Export retorna los nonces vigentes para persistencia.
	Export(ctx context.Context) ([]Record, error)

	// Import carga nonces previos, descartando los ya vencidos.
	Import(ctx context.Context, recs []Record) error
}

// NewValue genera un nonce aleatorio (base64url sin padding, 16 bytes).
func NewValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
