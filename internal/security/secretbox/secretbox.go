// Package secretbox cifra material sensible (claves privadas) con una clave
// maestra del proceso. Se usa para la sección de claves del snapshot: las
// claves privadas nunca tocan disco en claro.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	masterKeyEnvVar  = "INSIGHTBRIDGE_MASTER_KEY"
	passphraseEnvVar = "INSIGHTBRIDGE_MASTER_PASSPHRASE"

	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

// Salt fijo para derivar la clave desde passphrase (modo dev). En producción
// se espera INSIGHTBRIDGE_MASTER_KEY con 32 bytes aleatorios.
var passphraseSalt = []byte("insightbridge.snapshot.v1")

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded carga la clave maestra una sola vez: primero desde
// INSIGHTBRIDGE_MASTER_KEY (base64, 32 bytes); si no está, deriva una con
// argon2id desde INSIGHTBRIDGE_MASTER_PASSPHRASE.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 != "" {
			k, err := base64.StdEncoding.DecodeString(kb64)
			if err != nil {
				loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
				return
			}
			if len(k) != requiredKeyLength {
				loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", masterKeyEnvVar, requiredKeyLength, len(k))
				return
			}
			setKey(k)
			return
		}

		pass := strings.TrimSpace(os.Getenv(passphraseEnvVar))
		if pass == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", masterKeyEnvVar)
			return
		}
		setKey(argon2.IDKey([]byte(pass), passphraseSalt, 3, 64*1024, 1, requiredKeyLength))
	})
	return loadErr
}

func setKey(k []byte) {
	mu.Lock()
	masterKey = make([]byte, len(k))
	copy(masterKey, k)
	mu.Unlock()
}

// Ready expone si la clave está cargada o puede cargarse (útil para config print).
func Ready() bool {
	return ensureLoaded() == nil
}

// Encrypt cifra plain y devuelve base64(nonce)|base64(ciphertext).
func Encrypt(plain []byte) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	aesgcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
// Un ciphertext manipulado falla en la verificación GCM.
func Decrypt(cipherText string) ([]byte, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return nil, errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return nil, fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}

	aesgcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return pt, nil
}

func newGCM() (cipher.AEAD, error) {
	mu.RLock()
	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aesgcm, nil
}

// --- Helpers para tests ---

// UnsafeResetForTests borra estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
}

// UnsafeSetMasterKeyForTests permite setear una clave cruda (32 bytes) en tests.
func UnsafeSetMasterKeyForTests(k []byte) error {
	if len(k) != requiredKeyLength {
		return fmt.Errorf("clave inválida para test: se requieren %d bytes", requiredKeyLength)
	}
	UnsafeResetForTests()
	masterKeyOnce.Do(func() {})
	setKey(k)
	return nil
}
