package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/holopos/internal/sales"
	"github.com/angelmondragon/holopos/pkg/clock"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/google/uuid"
)

// SchemaVersion is written into every snapshot this build produces.
const SchemaVersion = 1

const maxIDAttempts = 16

// PendingSale is a sale accepted on the till but not yet acknowledged by the
// backend. Entries are removed once synced, never flipped.
type PendingSale struct {
	LocalID   string        `json:"local_id"`
	Payload   sales.Payload `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	Synced    bool          `json:"synced"`
}

type envelope struct {
	SchemaVersion int           `json:"schema_version"`
	Sales         []PendingSale `json:"sales"`
}

// legacySale is the shape the browser client kept under the same key.
type legacySale struct {
	ID   string        `json:"id"`
	Data sales.Payload `json:"data"`
}

type snapshotStore interface {
	Read(ctx context.Context) ([]byte, error)
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
}

// CorruptionHook is told about every snapshot that had to be discarded.
type CorruptionHook func(ctx context.Context, err error)

type StoreParams struct {
	Snapshot     snapshotStore
	Clock        clock.Clock
	Logger       *logger.Logger
	OnCorruption CorruptionHook
}

// Store is the durable queue of pending sales. Every mutation is a full
// read-modify-write of one snapshot document.
type Store struct {
	snapshot     snapshotStore
	clock        clock.Clock
	logg         *logger.Logger
	onCorruption CorruptionHook
	newSuffix    func() string

	mu sync.Mutex
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Snapshot == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if params.Clock == nil {
		params.Clock = clock.NewRealClock()
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Store{
		snapshot:     params.Snapshot,
		clock:        params.Clock,
		logg:         params.Logger,
		onCorruption: params.OnCorruption,
		newSuffix:    randomSuffix,
	}, nil
}

// Enqueue persists payload under a freshly generated local id and returns
// it. The id is durable once Enqueue returns.
func (s *Store) Enqueue(ctx context.Context, payload sales.Payload) (string, error) {
	return s.enqueue(ctx, "", payload)
}

// EnqueueWithID persists payload under a local id the caller already used,
// typically as the idempotency key of a submit that may have reached the
// backend. An id that is already queued is a conflict.
func (s *Store) EnqueueWithID(ctx context.Context, localID string, payload sales.Payload) error {
	if strings.TrimSpace(localID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "local id is required")
	}
	_, err := s.enqueue(ctx, localID, payload)
	return err
}

// NewLocalID returns an id in the offline_<millis>_<suffix> format without
// reserving it.
func (s *Store) NewLocalID() string {
	return fmt.Sprintf("offline_%d_%s", s.clock.Now().UnixMilli(), s.newSuffix())
}

func (s *Store) enqueue(ctx context.Context, requested string, payload sales.Payload) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		localID   string
		corrupted error
	)
	err := s.snapshot.Update(ctx, func(current []byte) ([]byte, error) {
		queue, corruption := decodeOrEmpty(current)
		corrupted = corruption
		id := requested
		if id == "" {
			generated, err := s.nextID(queue)
			if err != nil {
				return nil, err
			}
			id = generated
		} else if queued(queue, id) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "offline sale already queued").
				WithDetails(map[string]any{"local_id": id})
		}
		localID = id
		queue = append(queue, PendingSale{
			LocalID:   id,
			Payload:   payload,
			CreatedAt: s.clock.Now().UTC(),
		})
		return encode(queue)
	})
	if err != nil {
		return "", fmt.Errorf("enqueue offline sale: %w", err)
	}
	s.reportCorruption(ctx, corrupted)

	s.logg.Info(s.logg.WithSaleID(ctx, localID), "sale queued offline")
	return localID, nil
}

func queued(queue []PendingSale, localID string) bool {
	for _, sale := range queue {
		if sale.LocalID == localID {
			return true
		}
	}
	return false
}

// List returns the queued sales, oldest first.
func (s *Store) List(ctx context.Context) ([]PendingSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.snapshot.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading offline sales: %w", err)
	}
	queue, decodeErr := decode(raw)
	if decodeErr == nil {
		return ordered(queue), nil
	}

	// Rewrite the snapshot as empty so the corruption is reported once.
	var corrupted error
	err = s.snapshot.Update(ctx, func(current []byte) ([]byte, error) {
		queue, corrupted = decodeOrEmpty(current)
		return encode(queue)
	})
	if err != nil {
		return nil, fmt.Errorf("resetting offline sales: %w", err)
	}
	s.reportCorruption(ctx, corrupted)
	return ordered(queue), nil
}

// Remove drops localID from the queue. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		removed   bool
		corrupted error
	)
	err := s.snapshot.Update(ctx, func(current []byte) ([]byte, error) {
		queue, corruption := decodeOrEmpty(current)
		corrupted = corruption
		removed = false
		kept := queue[:0]
		for _, sale := range queue {
			if sale.LocalID == localID {
				removed = true
				continue
			}
			kept = append(kept, sale)
		}
		return encode(kept)
	})
	if err != nil {
		return fmt.Errorf("remove offline sale: %w", err)
	}
	s.reportCorruption(ctx, corrupted)
	if removed {
		s.logg.Debug(s.logg.WithSaleID(ctx, localID), "offline sale removed")
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	queue, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

// decodeOrEmpty decodes the snapshot. An unreadable snapshot yields an empty
// queue plus the corruption to report once the update has settled; fn may run
// several times under optimistic retries.
func decodeOrEmpty(raw []byte) ([]PendingSale, error) {
	queue, err := decode(raw)
	if err == nil {
		return queue, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeStorageCorruption, err, "offline sale snapshot unreadable, queue reset")
}

func (s *Store) reportCorruption(ctx context.Context, corruption error) {
	if corruption == nil {
		return
	}
	s.logg.Error(ctx, "offline sale snapshot discarded", corruption)
	if s.onCorruption != nil {
		s.onCorruption(ctx, corruption)
	}
}

func (s *Store) nextID(queue []PendingSale) (string, error) {
	taken := make(map[string]struct{}, len(queue))
	for _, sale := range queue {
		taken[sale.LocalID] = struct{}{}
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.NewLocalID()
		if _, dup := taken[id]; !dup {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique offline id")
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func decode(raw []byte) ([]PendingSale, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var legacy []legacySale
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy snapshot: %w", err)
		}
		queue := make([]PendingSale, 0, len(legacy))
		for i, entry := range legacy {
			id := entry.ID
			if id == "" {
				id = fmt.Sprintf("offline_legacy_%d", i)
			}
			queue = append(queue, PendingSale{LocalID: id, Payload: entry.Data})
		}
		return queue, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d", env.SchemaVersion)
	}
	for i, sale := range env.Sales {
		if sale.LocalID == "" {
			return nil, fmt.Errorf("sale %d has no local_id", i)
		}
	}
	return env.Sales, nil
}

func encode(queue []PendingSale) ([]byte, error) {
	if queue == nil {
		queue = []PendingSale{}
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, Sales: queue})
}

func ordered(queue []PendingSale) []PendingSale {
	out := make([]PendingSale, len(queue))
	copy(out, queue)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
