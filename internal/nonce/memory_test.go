package nonce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_FirstUseThenReplay(t *testing.T) {
	g := NewMemory(time.Minute)
	ctx := context.Background()

	ok, err := g.CheckAndAccept(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("CheckAndAccept err: %v", err)
	}
	if !ok {
		t.Fatal("primer uso rechazado")
	}

	ok, err = g.CheckAndAccept(ctx, "nonce-1")
	if err != nil {
		t.Fatalf("CheckAndAccept err: %v", err)
	}
	if ok {
		t.Fatal("replay aceptado")
	}

	// Otro valor no se ve afectado
	ok, _ = g.CheckAndAccept(ctx, "nonce-2")
	if !ok {
		t.Fatal("valor distinto rechazado")
	}
}

func TestMemory_AcceptsAgainAfterWindow(t *testing.T) {
	g := NewMemory(50 * time.Millisecond)
	ctx := context.Background()

	if ok, _ := g.CheckAndAccept(ctx, "n"); !ok {
		t.Fatal("primer uso rechazado")
	}
	time.Sleep(80 * time.Millisecond)
	if ok, _ := g.CheckAndAccept(ctx, "n"); !ok {
		t.Fatal("nonce fuera de ventana debería aceptarse de nuevo")
	}
}

func TestNewValue(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v, err := NewValue()
		if err != nil {
			t.Fatalf("NewValue err: %v", err)
		}
		if len(v) == 0 {
			t.Fatal("nonce vacío")
		}
		if seen[v] {
			t.Fatalf("nonce repetido: %q", v)
		}
		seen[v] = true
	}
}

func TestMemory_ConcurrentSameValue(t *testing.T) {
	g := NewMemory(time.Minute)
	ctx := context.Background()

	contended, err := NewValue()
	if err != nil {
		t.Fatal(err)
	}

	const workers = 32
	var accepted int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := g.CheckAndAccept(ctx, contended)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("double-accept: %d goroutines aceptadas", accepted)
	}
}

func TestMemory_ExportImport(t *testing.T) {
	g := NewMemory(time.Minute)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if ok, _ := g.CheckAndAccept(ctx, v); !ok {
			t.Fatalf("nonce %q rechazado", v)
		}
	}

	recs, err := g.Export(ctx)
	if err != nil {
		t.Fatalf("Export err: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("export: %d registros, esperaba 3", len(recs))
	}

	restored := NewMemory(time.Minute)
	if err := restored.Import(ctx, recs); err != nil {
		t.Fatalf("Import err: %v", err)
	}
	// Los nonces restaurados siguen siendo replays
	for _, v := range []string{"a", "b", "c"} {
		if ok, _ := restored.CheckAndAccept(ctx, v); ok {
			t.Fatalf("nonce %q aceptado después del restore", v)
		}
	}
	// Uno nuevo pasa
	if ok, _ := restored.CheckAndAccept(ctx, "d"); !ok {
		t.Fatal("nonce nuevo rechazado después del restore")
	}
}

func TestMemory_ImportDropsExpired(t *testing.T) {
	g := NewMemory(time.Minute)
	ctx := context.Background()

	recs := []Record{
		{Value: "stale", FirstSeen: time.Now().UTC().Add(-2 * time.Minute)},
		{Value: "fresh", FirstSeen: time.Now().UTC()},
	}
	if err := g.Import(ctx, recs); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.CheckAndAccept(ctx, "stale"); !ok {
		t.Fatal("nonce vencido no debería restaurarse")
	}
	if ok, _ := g.CheckAndAccept(ctx, "fresh"); ok {
		t.Fatal("nonce vigente restaurado fue aceptado de nuevo")
	}
}
