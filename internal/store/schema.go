package store

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	sessionColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString},
		{Name: "test_taker_id", Type: field.TypeString},
		{Name: "subject", Type: field.TypeString},
		{Name: "grade", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "stop_reason", Type: field.TypeString, Default: ""},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "standard_error", Type: field.TypeFloat64, Nullable: true},
		{Name: "final_theta", Type: field.TypeFloat64, Nullable: true},
		{Name: "final_standard_error", Type: field.TypeFloat64, Nullable: true},
		{Name: "item_count", Type: field.TypeInt},
		{Name: "percent_correct", Type: field.TypeFloat64},
		{Name: "duration_seconds", Type: field.TypeFloat64},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "seq", Type: field.TypeInt64, Default: 0},
	}
	sessionsTable = &schema.Table{
		Name:       "session_snapshots",
		Columns:    sessionColumns,
		PrimaryKey: []*schema.Column{sessionColumns[0]},
		Indexes: []*schema.Index{
			{Name: "sessionsnapshot_status", Columns: []*schema.Column{sessionColumns[4]}},
			{Name: "sessionsnapshot_updated_at", Columns: []*schema.Column{sessionColumns[14]}},
		},
	}

	exposureColumns = []*schema.Column{
		{Name: "item_id", Type: field.TypeString},
		{Name: "count", Type: field.TypeInt64, Default: 0},
	}
	exposureTable = &schema.Table{
		Name:       "exposure_counts",
		Columns:    exposureColumns,
		PrimaryKey: []*schema.Column{exposureColumns[0]},
	}

	totalsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "assessments", Type: field.TypeInt64, Default: 0},
	}
	totalsTable = &schema.Table{
		Name:       "assessment_totals",
		Columns:    totalsColumns,
		PrimaryKey: []*schema.Column{totalsColumns[0]},
	}

	tables = []*schema.Table{sessionsTable, exposureTable, totalsTable}
)

// totalsRow is the id of the single assessment_totals row.
const totalsRow = 1

func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}
