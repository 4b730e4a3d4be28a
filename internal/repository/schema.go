package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names shared by the repositories.
const (
	usersTable      = "users"
	activitiesTable = "activities"

	colEmail         = "email"
	colName          = "name"
	colDOB           = "dob"
	colAge           = "age"
	colHealthRecords = "health_records"
	colReportsCount  = "reports_count"
	colScansCount    = "scans_count"
	colQueriesCount  = "queries_count"

	colID        = "id"
	colUserEmail = "user_email"
	colAction    = "action"
	colDate      = "date"
)

var (
	// UsersColumns holds the columns for the "users" table.
	UsersColumns = []*schema.Column{
		{Name: colEmail, Type: field.TypeString, Size: 255},
		{Name: colName, Type: field.TypeString, Size: 255},
		{Name: colDOB, Type: field.TypeTime, SchemaType: map[string]string{dialect.Postgres: "date", dialect.SQLite: "date"}},
		{Name: colAge, Type: field.TypeInt},
		{Name: colHealthRecords, Type: field.TypeJSON, Nullable: true},
		{Name: colReportsCount, Type: field.TypeInt64, Default: 0},
		{Name: colScansCount, Type: field.TypeInt64, Default: 0},
		{Name: colQueriesCount, Type: field.TypeInt64, Default: 0},
	}
	// UsersTable holds the schema information for the "users" table.
	UsersTable = &schema.Table{
		Name:       usersTable,
		Columns:    UsersColumns,
		PrimaryKey: []*schema.Column{UsersColumns[0]},
	}
	// ActivitiesColumns holds the columns for the "activities" table.
	ActivitiesColumns = []*schema.Column{
		{Name: colID, Type: field.TypeInt64, Increment: true},
		{Name: colAction, Type: field.TypeString, Size: 255},
		{Name: colDate, Type: field.TypeTime},
		{Name: colUserEmail, Type: field.TypeString, Size: 255},
	}
	// ActivitiesTable holds the schema information for the "activities" table.
	ActivitiesTable = &schema.Table{
		Name:       activitiesTable,
		Columns:    ActivitiesColumns,
		PrimaryKey: []*schema.Column{ActivitiesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "activities_users_activities",
				Columns:    []*schema.Column{ActivitiesColumns[3]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "activity_user_email_date",
				Unique:  false,
				Columns: []*schema.Column{ActivitiesColumns[3], ActivitiesColumns[2]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		UsersTable,
		ActivitiesTable,
	}
)

func init() {
	ActivitiesTable.ForeignKeys[0].RefTable = UsersTable
}

// Migrate creates or updates the users and activities tables. It is additive:
// columns and tables are never dropped.
func (c *Client) Migrate(ctx context.Context) error {
	c.logger.Info("migrating database schema", "dialect", c.Dialect())
	m, err := schema.NewMigrate(c.drv)
	if err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		c.logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("create schema: %w", err)
	}
	c.logger.Info("database schema up to date")
	return nil
}
