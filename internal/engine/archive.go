package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/untoldecay/mission-control/internal/codec"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

// archive moves a mission document from the active area to the archive
// area. The document is stamped done, its updated_at refreshed and a
// completion note appended. On success the mission leaves the active cache
// and enters the archived one; on failure nothing is evicted and no partial
// archive copy is left behind.
func (e *Engine) archive(m *types.Mission, raw []byte) (*types.Mission, error) {
	key := m.StorageKey
	at := e.now().UTC()

	done := m.Clone()
	done.Status = types.StatusDone
	done.UpdatedAt = at
	body := codec.MarkCompleted(codec.Parse(raw).Body(), at)
	out, err := codec.Serialize(done, body)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", key, err)
	}

	dest := e.layout.ArchivePath(key)
	e.expect(dest, out)
	if err := workspace.WriteFileAtomic(dest, out, 0o644); err != nil {
		e.forget(dest)
		return nil, fmt.Errorf("write archive copy of %s: %w", key, err)
	}
	if err := os.Remove(e.layout.ActivePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(dest)
		e.forget(dest)
		return nil, fmt.Errorf("remove active %s: %w", key, err)
	}

	e.active.Delete(key)
	done.Archived = true
	done.HasHeader = true
	done.HeaderFormat = types.HeaderYAML
	e.archived.Upsert(key, done)
	e.log.Info("mission archived", "key", key)
	return done, nil
}
