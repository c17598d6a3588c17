package library

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/trvinh/fDOG/pkg/types"
)

// catalog persists the registration order of the library. The directories
// themselves are the source of truth for which artifacts exist; the catalog
// only pins the order List reports them in.
type catalog struct {
	SchemaVer int      `json:"schema_ver"`
	Taxa      []string `json:"taxa"`
}

const catalogSchemaVer = 1

// loadCatalog reads the registration order from path. A missing file yields
// an empty order; an unreadable or incompatible file is treated the same way,
// because the order can always be rebuilt from the directories.
func loadCatalog(path string) ([]types.TaxonID, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		log.Warn("catalog unreadable, rebuilding order from directories", "path", path, "err", err)
		return nil, nil
	}
	if cat.SchemaVer != catalogSchemaVer {
		log.Warn("catalog schema mismatch, rebuilding order from directories", "path", path, "got", cat.SchemaVer)
		return nil, nil
	}

	order := make([]types.TaxonID, 0, len(cat.Taxa))
	for _, s := range cat.Taxa {
		id, err := types.ParseTaxonID(s)
		if err != nil {
			log.Warn("catalog entry ignored", "entry", s, "err", err)
			continue
		}
		order = append(order, id)
	}
	return order, nil
}

// saveCatalog writes the registration order atomically, temp file plus rename,
// so a crash mid-write never leaves a truncated catalog behind.
func saveCatalog(path string, order []types.TaxonID) error {
	cat := catalog{SchemaVer: catalogSchemaVer, Taxa: make([]string, 0, len(order))}
	for _, id := range order {
		cat.Taxa = append(cat.Taxa, id.String())
	}

	raw, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename catalog: %w", err)
	}
	return nil
}
