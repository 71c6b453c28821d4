// Package keystore mantiene los pares de claves de firma del proceso,
// indexados por id. Firma y verificación Ed25519.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
)

var (
	// ErrUnknownKey indica que no existe un par de claves para el id pedido.
	ErrUnknownKey = errors.New("unknown key id")

	// ErrKeyGeneration indica un fallo de entropía/OS al generar claves.
	ErrKeyGeneration = errors.New("key generation failed")
)

// KeyPair es un par de claves Ed25519 con metadata.
// Inmutable una vez creado; solo Rotate lo reemplaza.
type KeyPair struct {
	KID        string
	Alg        string // "EdDSA"
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	CreatedAt  time.Time
}

// Store es el registro de claves del proceso. Seguro para uso concurrente.
type Store struct {
	mu    sync.RWMutex
	pairs map[string]*KeyPair
	// retired guarda públicas de pares rotados: las firmas viejas siguen
	// siendo verificables después de una rotación.
	retired map[string][]ed25519.PublicKey

	log *zap.Logger
}

func New() *Store {
	return &Store{
		pairs:   make(map[string]*KeyPair),
		retired: make(map[string][]ed25519.PublicKey),
		log:     logger.Named("keystore"),
	}
}

// Generate crea un par nuevo bajo id, pisando cualquier par existente.
func (s *Store) Generate(id string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	kp := &KeyPair{
		KID:        id,
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.pairs[id] = kp
	s.mu.Unlock()

	s.log.Info("key pair generated", zap.String("kid", id))
	return kp, nil
}

// Rotate genera un par nuevo para id y retira el anterior. La pública
// retirada queda disponible para Verify.
func (s *Store) Rotate(id string) (*KeyPair, error) {
	s.mu.RLock()
	old, ok := s.pairs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	kp := &KeyPair{
		KID:        id,
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.retired[id] = append(s.retired[id], old.PublicKey)
	s.pairs[id] = kp
	s.mu.Unlock()

	s.log.Info("key pair rotated", zap.String("kid", id))
	return kp, nil
}

// Sign firma msg con la privada de id.
func (s *Store) Sign(id string, msg []byte) ([]byte, error) {
	s.mu.RLock()
	kp, ok := s.pairs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKey
	}
	return ed25519.Sign(kp.PrivateKey, msg), nil
}

// Verify verifica sig sobre msg con la pública de id (activa o retirada).
// Una firma malformada o incorrecta retorna (false, nil), nunca error;
// el único error posible es ErrUnknownKey.
func (s *Store) Verify(id string, msg, sig []byte) (bool, error) {
	s.mu.RLock()
	kp, ok := s.pairs[id]
	retired := s.retired[id]
	s.mu.RUnlock()
	if !ok {
		return false, ErrUnknownKey
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	if ed25519.Verify(kp.PublicKey, msg, sig) {
		return true, nil
	}
	for _, pub := range retired {
		if ed25519.Verify(pub, msg, sig) {
			return true, nil
		}
	}
	return false, nil
}

// Get retorna el par activo para id.
func (s *Store) Get(id string) (*KeyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.pairs[id]
	return kp, ok
}

// Has reporta si existe un par para id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[id]
	return ok
}

// IDs retorna los ids registrados, ordenados.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.pairs))
	for id := range s.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
