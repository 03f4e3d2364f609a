package ddprofiler

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddsql"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// SubmitTables lists the tables of the catalog conn points at and submits
// one descriptor per table. The catalog connection is closed before the
// first descriptor is submitted.
func SubmitTables(ctx context.Context, s Submitter, dataset string, conn ddsql.ConnInfo) (int, error) {
	if err := conn.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %s", ddtask.ErrInvalidDescriptor, err)
	}

	log.Infof("Connecting to catalog %s", conn)
	db, err := ddsql.Open(ctx, conn)
	if err != nil {
		return 0, err
	}
	tables, err := ddsql.ListTables(ctx, db, conn)
	db.Close()
	if err != nil {
		return 0, err
	}

	descriptors := make([]ddtask.Table, 0, len(tables))
	for _, table := range tables {
		d, err := ddtask.NewTable(dataset, conn, table)
		if err != nil {
			return 0, err
		}
		descriptors = append(descriptors, d)
	}

	for i, d := range descriptors {
		log.Debugf("Detected relational table: %s", d.Table)
		if err := s.Submit(d); err != nil {
			return i, err
		}
	}
	log.Infof("Total tables submitted for processing: %d", len(descriptors))
	return len(descriptors), nil
}
