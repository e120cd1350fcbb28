// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OCAP2/bouncelog/pkg/core"
)

// PositionExport is the root JSON structure of an export file
type PositionExport struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Count      int             `json:"count"`
	Positions  []core.Snapshot `json:"positions"`
}

// exportJSON writes the stored positions to a (optionally gzipped) JSON file.
// Callers must hold b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := export.ExportedAt.Format("20060102_150405")
	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("positions_%s.json.gz", timestamp)
	} else {
		filename = fmt.Sprintf("positions_%s.json", timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() PositionExport {
	positions := make([]core.Snapshot, len(b.rows))
	copy(positions, b.rows)
	core.SortSnapshots(positions)

	return PositionExport{
		ExportedAt: b.now().UTC(),
		Count:      len(positions),
		Positions:  positions,
	}
}

func writeJSON(path string, data PositionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data PositionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
