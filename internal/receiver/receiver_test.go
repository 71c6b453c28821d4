package receiver

import (
	"fmt"
	"testing"
	"time"
)

func TestReceive_ValidMessage(t *testing.T) {
	r := New(Options{Capacity: 10})

	if !r.Receive(map[string]any{"content": "hello", "source": "api"}) {
		t.Fatal("mensaje válido rechazado")
	}
	st := r.Status()
	if st.BufferLength != 1 || st.Capacity != 10 {
		t.Fatalf("status inesperado: %+v", st)
	}
}

func TestReceive_RejectsInvalid(t *testing.T) {
	r := New(Options{Capacity: 10})

	if r.Receive(nil) {
		t.Fatal("mensaje nil aceptado")
	}
	if r.Receive(map[string]any{}) {
		t.Fatal("mensaje vacío aceptado")
	}
	if r.Receive(map[string]any{"content": "x", "corrupt": true}) {
		t.Fatal("mensaje con flag de corrupción aceptado")
	}
	// corrupt=false no dispara el rechazo
	if !r.Receive(map[string]any{"content": "x", "corrupt": false}) {
		t.Fatal("mensaje con corrupt=false rechazado")
	}
	if got := r.Status().BufferLength; got != 1 {
		t.Fatalf("buffer: %d, esperaba 1", got)
	}
}

func TestReceive_CustomCorruptField(t *testing.T) {
	r := New(Options{Capacity: 10, CorruptField: "simulate_failure"})

	if r.Receive(map[string]any{"content": "x", "simulate_failure": true}) {
		t.Fatal("flag custom no respetado")
	}
	if !r.Receive(map[string]any{"content": "x", "corrupt": true}) {
		t.Fatal("campo default no debería aplicar con flag custom configurado")
	}
}

func TestReceive_BufferFull(t *testing.T) {
	const capacity = 5
	r := New(Options{Capacity: capacity})

	for i := 0; i < capacity; i++ {
		if !r.Receive(map[string]any{"seq": i}) {
			t.Fatalf("mensaje %d rechazado antes de llenar", i)
		}
	}
	// El (N+1)-ésimo válido se rechaza y el largo no cambia
	if r.Receive(map[string]any{"seq": capacity}) {
		t.Fatal("mensaje aceptado con buffer lleno")
	}
	if got := r.Status().BufferLength; got != capacity {
		t.Fatalf("buffer: %d, esperaba %d", got, capacity)
	}

	// Drain libera capacidad
	drained := r.Drain()
	if len(drained) != capacity {
		t.Fatalf("drain: %d mensajes", len(drained))
	}
	if !r.Receive(map[string]any{"seq": "post-drain"}) {
		t.Fatal("mensaje rechazado después del drain")
	}
}

func TestStatus_WarningThreshold(t *testing.T) {
	r := New(Options{Capacity: 10, WarnRatio: 0.8})

	for i := 0; i < 7; i++ {
		r.Receive(map[string]any{"seq": i})
	}
	if st := r.Status(); st.State != "healthy" {
		t.Fatalf("7/10 debería ser healthy, got %q", st.State)
	}
	r.Receive(map[string]any{"seq": 7})
	if st := r.Status(); st.State != "warning" {
		t.Fatalf("8/10 debería ser warning, got %q", st.State)
	}
}

func TestHeartbeat_Staleness(t *testing.T) {
	r := New(Options{})
	r.Heartbeat()
	if s := r.Staleness(); s > time.Second {
		t.Fatalf("staleness recién latido: %v", s)
	}
	time.Sleep(30 * time.Millisecond)
	if s := r.Staleness(); s < 20*time.Millisecond {
		t.Fatalf("staleness no avanza: %v", s)
	}
}

func TestMessages_Order(t *testing.T) {
	r := New(Options{Capacity: 10})
	for i := 0; i < 3; i++ {
		r.Receive(map[string]any{"seq": fmt.Sprintf("m%d", i)})
	}
	msgs := r.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages: %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Payload["seq"] != fmt.Sprintf("m%d", i) {
			t.Fatalf("orden roto en %d: %v", i, m.Payload)
		}
		if m.ID == "" || m.ReceivedAt.IsZero() {
			t.Fatalf("mensaje sin id/timestamp: %+v", m)
		}
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	r := New(Options{Capacity: 7})
	for i := 0; i < 3; i++ {
		r.Receive(map[string]any{"seq": i})
	}
	r.Heartbeat()

	st := r.Export()

	restored := New(Options{Capacity: 99}) // la capacidad persistida gana
	restored.Import(st)

	got := restored.Status()
	if got.Capacity != 7 {
		t.Fatalf("capacidad restaurada: %d", got.Capacity)
	}
	if got.BufferLength != 3 {
		t.Fatalf("buffer restaurado: %d", got.BufferLength)
	}
	a, b := r.Messages(), restored.Messages()
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("mensaje %d difiere: %q vs %q", i, a[i].ID, b[i].ID)
		}
	}
}
