// Package metrics exports run summaries for external monitoring:
// Prometheus textfile format and a JSON document.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/treq/packages/stats"
)

// Exporter renders a run summary to a writer.
type Exporter interface {
	Export(w io.Writer, summary *stats.Summary) error
}

// WriteFile exports the summary to path, picking the exporter from the
// file extension: .prom or .txt for Prometheus textfile format, .json
// for JSON.
func WriteFile(path string, summary *stats.Summary) error {
	var exporter Exporter
	switch strings.ToLower(filepath.Ext(path)) {
	case ".prom", ".txt":
		exporter = NewPrometheusExporter()
	case ".json":
		exporter = NewJSONExporter()
	default:
		return fmt.Errorf("unknown metrics format for %q (use .prom, .txt, or .json)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer f.Close()

	return exporter.Export(f, summary)
}
