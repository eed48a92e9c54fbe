package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hqmon/argusd/internal/acd"
	"github.com/hqmon/argusd/internal/model"
)

// Submitter writes encoded order requests into the instrument inbox and
// keeps an archive copy of every document it sends.
type Submitter struct {
	inboxDir   string
	archiveDir string
	codec      *acd.Codec
	log        zerolog.Logger

	submitted atomic.Int64
}

func NewSubmitter(inboxDir, archiveDir string, codec *acd.Codec, log zerolog.Logger) *Submitter {
	return &Submitter{
		inboxDir:   inboxDir,
		archiveDir: archiveDir,
		codec:      codec,
		log:        log,
	}
}

// Submit encodes the order and drops it into the inbox. The inbox write
// goes through a temp file plus rename so the instrument never sees a
// half-written document. On success the order's RequestFile points at the
// archive copy.
func (s *Submitter) Submit(o *model.Order) error {
	data, err := s.codec.EncodeRequest(o)
	if err != nil {
		return err
	}
	name, err := RequestFilename(o.ID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.archiveDir, 0755); err != nil {
		return fmt.Errorf("create order archive: %w", err)
	}
	archivePath := filepath.Join(s.archiveDir, name)
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		return fmt.Errorf("archive request %s: %w", name, err)
	}

	if err := writeAtomic(s.inboxDir, name, data); err != nil {
		return fmt.Errorf("submit request %s: %w", name, err)
	}

	o.RequestFile = archivePath
	s.submitted.Add(1)
	s.log.Info().Str("order_id", o.ID).Str("file", name).Msg("request submitted")
	return nil
}

// Submitted returns the number of requests written since startup.
func (s *Submitter) Submitted() int64 {
	return s.submitted.Load()
}

// writeAtomic lands content in dir under name via a temp file and rename.
func writeAtomic(dir, name string, content []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".argusd-tmp-*.xml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
