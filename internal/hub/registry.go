package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CatalogEntry is one preloadable action: a semantic name and the program
// body that implements it.
type CatalogEntry struct {
	Name    string
	Program []byte
}

// Step is one primitive command in a batched sequence, as produced by an
// action translator: an opaque command string plus the delay to insert
// after it.
type Step struct {
	Command string
	Delay   time.Duration
}

// Compiler turns a sequence of steps into a single program body so a whole
// batch costs exactly one program start (and thus one startup sound).
type Compiler interface {
	Compile(steps []Step) ([]byte, error)
}

// RunResult reports how an action was delivered. Acknowledged=false means
// the request was written to the link but delivery was not confirmed
// (fire-and-forget); Acknowledged=true means the hub's response arrived.
type RunResult struct {
	Latency      time.Duration
	Acknowledged bool
}

// RegistryOptions sets the registry's slot layout. The hub's slot storage
// is hardware-limited, so the bound comes from configuration rather than a
// constant here.
type RegistryOptions struct {
	BaseSlot    uint8 // first catalog slot; entries occupy BaseSlot..BaseSlot+n-1
	ScratchSlot uint8 // slot reused for ad-hoc batched sequences
	MaxSlots    int   // total slots available to the catalog
}

// DefaultRegistryOptions returns the slot layout used by App 3 hubs.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		BaseSlot:    0,
		ScratchSlot: 18,
		MaxSlots:    16,
	}
}

type slotEntry struct {
	slot     uint8
	program  []byte
	uploaded bool
}

// Registry is the slot fast path: a fixed catalog of small programs
// preloaded into numbered slots at connect time, turning a multi-hundred-
// millisecond upload+start into a slot start. The catalog's shape is fixed
// after Preload; only the uploaded flags change (on reconnect).
type Registry struct {
	session  *Session
	compiler Compiler
	opts     RegistryOptions

	mu      sync.Mutex
	entries map[string]*slotEntry
	order   []string
}

// NewRegistry creates a registry on top of an established session. The
// compiler is used by RunSequence and may be nil if batching is not needed.
func NewRegistry(session *Session, compiler Compiler, opts RegistryOptions) *Registry {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = 16
	}
	return &Registry{
		session:  session,
		compiler: compiler,
		opts:     opts,
		entries:  make(map[string]*slotEntry),
	}
}

// Preload uploads the catalog into fixed slots, one entry per slot in
// catalog order. Preloading is best effort: a failed upload makes that one
// action unavailable and the rest of the catalog proceeds. Only a catalog
// that cannot fit the slot layout fails outright.
func (r *Registry) Preload(ctx context.Context, catalog []CatalogEntry) error {
	if len(catalog) > r.opts.MaxSlots {
		return fmt.Errorf("hub: catalog has %d entries, slot layout allows %d", len(catalog), r.opts.MaxSlots)
	}

	start := time.Now()
	failed := 0
	for i, entry := range catalog {
		slot := r.opts.BaseSlot + uint8(i)
		e := &slotEntry{slot: slot, program: entry.Program}

		if err := r.session.Upload(ctx, slot, entry.Name+".py", entry.Program); err != nil {
			failed++
			slog.Warn("[hub] preload failed, action unavailable", "action", entry.Name, "slot", slot, "error", err)
		} else {
			e.uploaded = true
			slog.Debug("[hub] preloaded", "action", entry.Name, "slot", slot, "bytes", len(entry.Program))
		}

		r.mu.Lock()
		if _, exists := r.entries[entry.Name]; !exists {
			r.order = append(r.order, entry.Name)
		}
		r.entries[entry.Name] = e
		r.mu.Unlock()
	}

	slog.Info("[hub] preload complete", "actions", len(catalog), "failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Invalidate marks every entry as not uploaded. Call after a reconnect:
// slot contents survive on the hub only as long as the hub retains them,
// so the catalog is re-uploaded rather than trusted.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.uploaded = false
	}
}

// Reload re-uploads every known catalog entry. Used after Invalidate.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	catalog := make([]CatalogEntry, 0, len(r.order))
	for _, name := range r.order {
		catalog = append(catalog, CatalogEntry{Name: name, Program: r.entries[name].program})
	}
	r.mu.Unlock()
	return r.Preload(ctx, catalog)
}

// Actions lists catalog entries in preload order, available or not.
func (r *Registry) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Available reports whether an action's program is resident in its slot.
func (r *Registry) Available(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[action]
	return ok && e.uploaded
}

// Run starts an action's preloaded slot. With ack=false the call returns as
// soon as the flow request is written — lowest latency, no delivery
// guarantee. With ack=true it waits for the hub's acknowledgment. Either
// way the hub plays its startup sound once per call.
func (r *Registry) Run(ctx context.Context, action string, ack bool) (RunResult, error) {
	r.mu.Lock()
	e, ok := r.entries[action]
	r.mu.Unlock()
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !e.uploaded {
		return RunResult{}, fmt.Errorf("%w: %q", ErrActionUnavailable, action)
	}

	start := time.Now()
	if ack {
		if err := r.session.Flow(ctx, e.slot, false); err != nil {
			return RunResult{}, err
		}
	} else {
		if err := r.session.FlowNoAck(e.slot); err != nil {
			return RunResult{}, err
		}
	}
	return RunResult{Latency: time.Since(start), Acknowledged: ack}, nil
}

// Stop stops whatever runs in an action's slot, waiting for the ack.
func (r *Registry) Stop(ctx context.Context, action string) error {
	r.mu.Lock()
	e, ok := r.entries[action]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return r.session.Flow(ctx, e.slot, true)
}

// RunSequence compiles all steps into one composite program, uploads it to
// the scratch slot, and performs exactly one program start — bounding the
// startup-sound cost to one regardless of how many steps are batched.
func (r *Registry) RunSequence(ctx context.Context, steps []Step) error {
	if r.compiler == nil {
		return fmt.Errorf("hub: registry has no sequence compiler")
	}
	if len(steps) == 0 {
		return nil
	}

	program, err := r.compiler.Compile(steps)
	if err != nil {
		return fmt.Errorf("hub: compile sequence: %w", err)
	}
	if err := r.session.Upload(ctx, r.opts.ScratchSlot, "sequence.py", program); err != nil {
		return err
	}
	return r.session.Flow(ctx, r.opts.ScratchSlot, false)
}
