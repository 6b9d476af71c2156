// Package stagelog appends per-stage worker logs to
// stage_logs/{uid}/{index}/stage_{n}, the append-only log string named in
// the persisted state layout (spec §6). Callers discard failures here so
// they never block queue progression — the queue is the source of truth,
// not the log record.
package stagelog

import (
	"context"
	"fmt"

	"github.com/igait-niu/igait-pipeline/internal/rtdb"
)

// Store appends stage logs over rtdb.Store.
type Store struct {
	rtdb rtdb.Store
}

func NewStore(r rtdb.Store) *Store {
	return &Store{rtdb: r}
}

func key(uid string, index, stage int) string {
	return fmt.Sprintf("stage_logs/%s/%d/stage_%d", uid, index, stage)
}

// AppendStageLog concatenates logs onto any existing entry for
// (uid, index, stage).
func (s *Store) AppendStageLog(ctx context.Context, uid string, index, stage int, logs string) error {
	k := key(uid, index, stage)
	existing, _, err := s.rtdb.Get(ctx, k)
	if err != nil {
		return fmt.Errorf("read stage log %s: %w", k, err)
	}
	if err := s.rtdb.Set(ctx, k, existing+logs); err != nil {
		return fmt.Errorf("write stage log %s: %w", k, err)
	}
	return nil
}
