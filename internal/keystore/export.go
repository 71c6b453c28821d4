package keystore

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// ExportedKey es la forma serializable de un par de claves (con retiradas).
// La capa de persistencia cifra este blob antes de escribirlo a disco.
type ExportedKey struct {
	KID        string    `json:"kid"`
	Alg        string    `json:"alg"`
	PublicKey  []byte    `json:"public_key"`
	PrivateKey []byte    `json:"private_key"`
	CreatedAt  time.Time `json:"created_at"`
	Retired    [][]byte  `json:"retired,omitempty"`
}

// Export retorna una copia serializable de todas las claves.
func (s *Store) Export() []ExportedKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ExportedKey, 0, len(s.pairs))
	for id, kp := range s.pairs {
		ek := ExportedKey{
			KID:        kp.KID,
			Alg:        kp.Alg,
			PublicKey:  append([]byte(nil), kp.PublicKey...),
			PrivateKey: append([]byte(nil), kp.PrivateKey...),
			CreatedAt:  kp.CreatedAt,
		}
		for _, pub := range s.retired[id] {
			ek.Retired = append(ek.Retired, append([]byte(nil), pub...))
		}
		out = append(out, ek)
	}
	return out
}

// Import reemplaza el contenido del store con las claves dadas.
// Se usa en restore; valida tamaños antes de tocar estado.
func (s *Store) Import(keys []ExportedKey) error {
	pairs := make(map[string]*KeyPair, len(keys))
	retired := make(map[string][]ed25519.PublicKey)
	for _, ek := range keys {
		if len(ek.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("key %q: public key size %d", ek.KID, len(ek.PublicKey))
		}
		if len(ek.PrivateKey) != ed25519.PrivateKeySize {
			return fmt.Errorf("key %q: private key size %d", ek.KID, len(ek.PrivateKey))
		}
		pairs[ek.KID] = &KeyPair{
			KID:        ek.KID,
			Alg:        ek.Alg,
			PublicKey:  ed25519.PublicKey(append([]byte(nil), ek.PublicKey...)),
			PrivateKey: ed25519.PrivateKey(append([]byte(nil), ek.PrivateKey...)),
			CreatedAt:  ek.CreatedAt,
		}
		for _, pub := range ek.Retired {
			if len(pub) != ed25519.PublicKeySize {
				return fmt.Errorf("key %q: retired public key size %d", ek.KID, len(pub))
			}
			retired[ek.KID] = append(retired[ek.KID], ed25519.PublicKey(append([]byte(nil), pub...)))
		}
	}

	s.mu.Lock()
	s.pairs = pairs
	s.retired = retired
	s.mu.Unlock()
	return nil
}
