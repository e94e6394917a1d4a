package txn

import (
	"encoding/json"
	"fmt"
	"os"

	"bman/internal/pack"
	"bman/internal/schema"
)

// appendHistory writes one line to enrich/history.jsonl, mirroring the
// append-only file convention internal/logging uses for category logs.
func appendHistory(p *pack.Pack, event schema.HistoryEvent) error {
	path, err := pack.Resolve(p, pack.HistoryPath)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("txn: open history: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(event)
}
