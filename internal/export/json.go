// Package export writes a simulated dataset out as JSON files or into a
// relational database.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"revsim/internal/sim"
)

// WriteJSON writes each dataset collection to its own file under dir,
// creating the directory if needed.
func WriteJSON(dataset *sim.Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name string
		data any
	}{
		{"subscribers.json", dataset.Subscribers},
		{"subscriptions.json", dataset.Subscriptions},
		{"invoices.json", dataset.Invoices},
		{"payments.json", dataset.Payments},
		{"usage_events.json", dataset.UsageEvents},
		{"transfers.json", dataset.Transfers},
		{"lifecycle_events.json", dataset.Events},
		{"metrics.json", dataset.Metrics},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
