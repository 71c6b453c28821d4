package receiver

import "time"

// ExportedState es la forma serializable del receiver para snapshot/restore.
type ExportedState struct {
	Capacity      int       `json:"capacity"`
	Messages      []Message `json:"messages"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Export retorna una copia serializable del buffer y su liveness.
func (r *Receiver) Export() ExportedState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ExportedState{
		Capacity:      r.capacity,
		Messages:      copyMessages(r.buf),
		LastHeartbeat: r.lastHeartbeat,
	}
}

// Import restaura buffer, capacidad y último heartbeat desde un snapshot.
// La política (warn ratio, campo de corrupción) no se persiste: viene de
// configuración.
func (r *Receiver) Import(st ExportedState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Capacity > 0 {
		r.capacity = st.Capacity
	}
	msgs := copyMessages(st.Messages)
	if len(msgs) > r.capacity {
		msgs = msgs[:r.capacity]
	}
	r.buf = msgs
	if !st.LastHeartbeat.IsZero() {
		r.lastHeartbeat = st.LastHeartbeat
	}
}
