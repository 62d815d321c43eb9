// Package file provides file-based persistence for sequences. It backs local
// development and tests; production deployments use the postgresql package.
// Uniqueness of (recipient_id, campaign_id) is enforced with O_EXCL key
// files, conditional step updates with an in-process lock, so this store is
// single-process only.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/cadencehq/cadence/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root         string
	sequenceRepo *SequenceRepository
}

// NewPersistence creates a file-backed persistence rooted at the given
// directory, accepting either a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		sequenceRepo: NewSequenceRepository(cleanRoot),
	}
}

func (fp *Persistence) SequenceRepository() persistence.SequenceRepository {
	return fp.sequenceRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
