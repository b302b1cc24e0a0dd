package applier

import (
	"context"

	"github.com/corpadmin/migration-api/internal/ledger"
	"github.com/corpadmin/migration-api/internal/migration"
)

// StatusReport is a read-only view of the ledger against the directory.
type StatusReport struct {
	Applied []ledger.Record
	Pending []string
	Drift   []Drift
}

// Status reports applied, pending and drifted scripts without taking the
// migration lock or executing anything.
func (a *Applier) Status(ctx context.Context) (*StatusReport, error) {
	if err := a.store.EnsureTable(ctx); err != nil {
		return nil, err
	}

	records, err := a.store.GetApplied(ctx)
	if err != nil {
		return nil, err
	}

	scripts, err := migration.LoadFromDir(a.dir, a.ext)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]ledger.Record, len(records))
	for _, r := range records {
		byName[r.Filename] = r
	}

	report := &StatusReport{Applied: records, Pending: []string{}}

	for i := range scripts {
		rec, ok := byName[scripts[i].Filename]
		if !ok {
			report.Pending = append(report.Pending, scripts[i].Filename)

			continue
		}

		if d, drifted := checkDrift(rec, &scripts[i]); drifted {
			report.Drift = append(report.Drift, d)
		}
	}

	return report, nil
}
