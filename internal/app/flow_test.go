package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/insightbridge/internal/app"
	"github.com/dropDatabas3/insightbridge/internal/nonce"
)

// Flujo completo de verificación de un reporte de moderación: nonce fresco,
// firma del contenido, evidencia en la cadena y token de sesión, con restart
// en el medio.
func TestVerificationFlow(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := app.New(ctx, cfg)
	require.NoError(t, err)

	// 1. el cliente presenta un nonce fresco
	nv, err := nonce.NewValue()
	require.NoError(t, err)
	ok, err := c.Nonces.CheckAndAccept(ctx, nv)
	require.NoError(t, err)
	require.True(t, ok, "nonce fresco rechazado")

	// 2. se firma el contenido del reporte con la clave por defecto
	report := []byte(`{"content_id":"c-42","verdict":"remove"}`)
	sig, err := c.Keys.Sign("default", report)
	require.NoError(t, err)
	valid, err := c.Keys.Verify("default", report, sig)
	require.NoError(t, err)
	require.True(t, valid)

	// 3. la decisión queda encadenada en la auditoría
	h1, err := c.Chain.Append(map[string]any{"content_id": "c-42", "action": "remove"})
	require.NoError(t, err)
	require.NotEmpty(t, h1)

	// 4. el reporte entra al buffer de ingesta
	require.True(t, c.Receiver.Receive(map[string]any{"content_id": "c-42"}))
	c.Receiver.Heartbeat()

	// 5. el moderador recibe un token de sesión
	tok, err := c.Tokens.Issue(map[string]any{"sub": "moderator-7"}, time.Minute)
	require.NoError(t, err)

	// restart: snapshot + proceso nuevo
	require.NoError(t, c.Persist.Snapshot(ctx))
	require.NoError(t, c.Close())

	c2, err := app.New(ctx, cfg)
	require.NoError(t, err)
	defer c2.Close()

	// el replay del nonce sigue bloqueado tras el restart
	ok, err = c2.Nonces.CheckAndAccept(ctx, nv)
	require.NoError(t, err)
	require.False(t, ok, "replay aceptado tras restart")

	// la firma previa verifica con la clave restaurada
	valid, err = c2.Keys.Verify("default", report, sig)
	require.NoError(t, err)
	require.True(t, valid, "firma previa no verifica tras restart")

	// la cadena se restauró íntegra y sigue creciendo desde el último hash
	require.True(t, c2.Chain.VerifyIntegrity())
	require.Equal(t, h1, c2.Chain.LastHash())
	h2, err := c2.Chain.Append(map[string]any{"content_id": "c-43", "action": "allow"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
	require.True(t, c2.Chain.VerifyIntegrity())

	// el token sigue siendo válido
	claims, err := c2.Tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "moderator-7", claims["sub"])

	st := c2.Status()
	require.Equal(t, 2, st.ChainLength)
	require.Equal(t, 1, st.TotalMessages)
	require.Equal(t, "healthy", st.Buffer.State)
}
