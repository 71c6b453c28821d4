// Package receiver acepta mensajes de moderación entrantes en un buffer
// acotado, con chequeo de integridad previo y tracking de liveness por
// heartbeat. Lleno el buffer, los mensajes se rechazan (no se desalojan)
// hasta un Drain explícito.
package receiver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/metrics"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
)

// Defaults de política; ambos configurables vía Options.
const (
	DefaultCapacity     = 100
	DefaultWarnRatio    = 0.8
	DefaultCorruptField = "corrupt"
)

// Message es un mensaje aceptado, en orden de llegada.
type Message struct {
	ID         string         `json:"id"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Status es la introspección read-only del receiver.
type Status struct {
	BufferLength int           `json:"buffer_length"`
	Capacity     int           `json:"capacity"`
	Staleness    time.Duration `json:"staleness"`
	State        string        `json:"state"` // "healthy" | "warning"
}

// Options configura el receiver.
type Options struct {
	// Capacity es el tamaño máximo del buffer. Default: 100.
	Capacity int
	// WarnRatio es la ocupación a partir de la cual Status reporta
	// "warning". Default: 0.8.
	WarnRatio float64
	// CorruptField es el campo booleano del payload que simula corrupción
	// (mensaje rechazado por integridad). Default: "corrupt".
	CorruptField string
}

// Receiver es el buffer de ingesta. Seguro para uso concurrente.
type Receiver struct {
	mu            sync.RWMutex
	buf           []Message
	capacity      int
	warnRatio     float64
	corruptField  string
	lastHeartbeat time.Time

	log *zap.Logger
}

func New(opts Options) *Receiver {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.WarnRatio <= 0 || opts.WarnRatio > 1 {
		opts.WarnRatio = DefaultWarnRatio
	}
	if opts.CorruptField == "" {
		opts.CorruptField = DefaultCorruptField
	}
	return &Receiver{
		buf:           make([]Message, 0, opts.Capacity),
		capacity:      opts.Capacity,
		warnRatio:     opts.WarnRatio,
		corruptField:  opts.CorruptField,
		lastHeartbeat: time.Now().UTC(),
		log:           logger.Named("receiver"),
	}
}

// Receive valida el mensaje y lo agrega al buffer. Retorna true solo si pasó
// el chequeo de integridad y había lugar. Los rechazos son resultados
// normales, no errores.
func (r *Receiver) Receive(payload map[string]any) bool {
	p, ok := r.checkIntegrity(payload)
	if !ok {
		metrics.ReceiverRejected.WithLabelValues("integrity").Inc()
		r.log.Warn("message rejected: integrity check failed")
		return false
	}

	r.mu.Lock()
	if len(r.buf) >= r.capacity {
		r.mu.Unlock()
		metrics.ReceiverRejected.WithLabelValues("buffer_full").Inc()
		r.log.Warn("message rejected: buffer full", zap.Int("capacity", r.capacity))
		return false
	}
	r.buf = append(r.buf, Message{
		ID:         uuid.NewString(),
		Payload:    p,
		ReceivedAt: time.Now().UTC(),
	})
	fill := float64(len(r.buf)) / float64(r.capacity)
	r.mu.Unlock()

	metrics.ReceiverAccepted.Inc()
	metrics.ReceiverBufferFill.Set(fill)
	return true
}

// checkIntegrity valida estructura y contenido: el mensaje debe ser un map
// no vacío, serializable, y sin el flag de corrupción seteado. Retorna una
// deep copy para que el buffer no comparta memoria con el caller.
func (r *Receiver) checkIntegrity(payload map[string]any) (map[string]any, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	if v, ok := payload[r.corruptField].(bool); ok && v {
		return nil, false
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var p map[string]any
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false
	}
	return p, true
}

// Heartbeat marca al productor upstream como vivo.
func (r *Receiver) Heartbeat() {
	r.mu.Lock()
	r.lastHeartbeat = time.Now().UTC()
	r.mu.Unlock()
}

// Staleness retorna cuánto hace del último heartbeat.
func (r *Receiver) Staleness() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.lastHeartbeat)
}

// Status retorna la introspección del buffer y liveness.
func (r *Receiver) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		BufferLength: len(r.buf),
		Capacity:     r.capacity,
		Staleness:    time.Since(r.lastHeartbeat),
		State:        "healthy",
	}
	if float64(len(r.buf)) >= r.warnRatio*float64(r.capacity) {
		st.State = "warning"
	}
	return st
}

// Messages retorna un snapshot del buffer en orden de llegada.
func (r *Receiver) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMessages(r.buf)
}

// Drain vacía el buffer y retorna los mensajes drenados. Es la operación que
// libera capacidad.
func (r *Receiver) Drain() []Message {
	r.mu.Lock()
	out := r.buf
	r.buf = make([]Message, 0, r.capacity)
	r.mu.Unlock()

	metrics.ReceiverBufferFill.Set(0)
	r.log.Info("buffer drained", zap.Int("messages", len(out)))
	return out
}

func copyMessages(src []Message) []Message {
	out := make([]Message, len(src))
	for i, m := range src {
		cp := m
		if b, err := json.Marshal(m.Payload); err == nil {
			var p map[string]any
			if json.Unmarshal(b, &p) == nil {
				cp.Payload = p
			}
		}
		out[i] = cp
	}
	return out
}
