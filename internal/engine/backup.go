package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/namespace"
	"github.com/fyrsmithlabs/lexrag/internal/vectorstore"
)

// backupLine is one JSONL record in a source's flat backup file.
// Vectors are recomputable and left out on purpose.
type backupLine struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	SavedAt  time.Time              `json:"saved_at"`
}

// writeBackup rewrites the flat JSONL backup for a source. The backup is
// redundant disaster-recovery data; failures are logged, not fatal, so a
// full disk cannot fail an otherwise indexed ingest.
func (e *Engine) writeBackup(ns *namespace.Namespace, source string, records []vectorstore.Record) {
	path := filepath.Join(ns.Dir("backup"), source+".jsonl")

	f, err := os.Create(path)
	if err != nil {
		e.logger.Warn("backup write failed",
			zap.String("case_id", ns.CaseID),
			zap.String("source", source),
			zap.Error(err),
		)
		return
	}
	defer f.Close()

	now := time.Now().UTC()
	enc := json.NewEncoder(f)
	for _, rec := range records {
		line := backupLine{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			SavedAt:  now,
		}
		if err := enc.Encode(line); err != nil {
			e.logger.Warn("backup write failed",
				zap.String("case_id", ns.CaseID),
				zap.String("source", source),
				zap.Error(err),
			)
			return
		}
	}
}
