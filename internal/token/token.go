// Package token emite y verifica tokens firmados con expiración (JWT EdDSA).
// La clave de firma vive en el keystore bajo un id designado.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/keystore"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
	"github.com/dropDatabas3/insightbridge/internal/util"
)

// DefaultKeyID es el id de la clave de firma de tokens en el keystore.
const DefaultKeyID = "token-service"

var (
	// ErrInvalidTTL indica un ttl <= 0 en Issue.
	ErrInvalidTTL = errors.New("ttl must be positive")

	// ErrMalformedToken indica que el token no se pudo decodificar en
	// header/claims/signature.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature indica que la firma no corresponde al contenido.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpiredToken indica que el token ya expiró.
	ErrExpiredToken = errors.New("token expired")
)

// Service firma claims arbitrarios usando la clave designada del keystore.
type Service struct {
	keys *keystore.Store
	kid  string
	log  *zap.Logger
}

// NewService construye el servicio. Si la clave designada no existe en el
// keystore la genera (bootstrap de arranque).
func NewService(ks *keystore.Store, kid string) (*Service, error) {
	if kid == "" {
		kid = DefaultKeyID
	}
	if !ks.Has(kid) {
		if _, err := ks.Generate(kid); err != nil {
			return nil, fmt.Errorf("bootstrap signing key: %w", err)
		}
	}
	return &Service{keys: ks, kid: kid, log: logger.Named("token")}, nil
}

// Issue firma claims con exp = now + ttl y retorna el JWT compacto.
func (s *Service) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	kp, ok := s.keys.Get(s.kid)
	if !ok {
		return "", keystore.ErrUnknownKey
	}

	now := time.Now().UTC()
	mc := jwtv5.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(ttl).Unix()

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, mc)
	tk.Header["kid"] = s.kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(kp.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify valida firma y expiración y retorna las claims.
// La firma se chequea antes de confiar en cualquier claim: un token
// manipulado (aunque además esté expirado) reporta ErrInvalidSignature.
func (s *Service) Verify(token string) (map[string]any, error) {
	tok, err := jwtv5.Parse(token, s.keyfunc,
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		s.log.Debug("token rechazado", zap.String("token", util.MaskSecret(token)), zap.Error(err))
		switch {
		case errors.Is(err, jwtv5.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrExpiredToken
		default:
			// kid desconocido, método inesperado, etc.
			return nil, ErrInvalidSignature
		}
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

// keyfunc resuelve la pública por kid del header (fallback: clave designada).
func (s *Service) keyfunc(t *jwtv5.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		kid = s.kid
	}
	kp, ok := s.keys.Get(kid)
	if !ok {
		return nil, keystore.ErrUnknownKey
	}
	return ed25519.PublicKey(kp.PublicKey), nil
}
