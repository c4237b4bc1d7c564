package sqlstore

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// SurfacesColumns holds the columns for the "a2ui_surfaces" table.
	SurfacesColumns = []*schema.Column{
		{Name: "surface_id", Type: field.TypeString, Unique: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "agent_id", Type: field.TypeString},
		{Name: "components", Type: field.TypeJSON},
		{Name: "data_model", Type: field.TypeJSON},
		{Name: "metadata", Type: field.TypeJSON},
		{Name: "version", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// SurfacesTable holds the schema information for the "a2ui_surfaces" table.
	SurfacesTable = &schema.Table{
		Name:       "a2ui_surfaces",
		Columns:    SurfacesColumns,
		PrimaryKey: []*schema.Column{SurfacesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "a2ui_surfaces_user_id_agent_id", Columns: []*schema.Column{SurfacesColumns[1], SurfacesColumns[2]}},
		},
	}

	// ActionLogsColumns holds the columns for the "a2ui_action_logs" table.
	ActionLogsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "surface_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "agent_id", Type: field.TypeString},
		{Name: "action_id", Type: field.TypeString},
		{Name: "action_type", Type: field.TypeString, Nullable: true},
		{Name: "payload", Type: field.TypeJSON},
		{Name: "metadata", Type: field.TypeJSON},
		{Name: "version", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
	}
	// ActionLogsTable holds the schema information for the "a2ui_action_logs" table.
	ActionLogsTable = &schema.Table{
		Name:       "a2ui_action_logs",
		Columns:    ActionLogsColumns,
		PrimaryKey: []*schema.Column{ActionLogsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "a2ui_action_logs_surface_id", Columns: []*schema.Column{ActionLogsColumns[1]}},
		},
	}

	// AuditLogsColumns holds the columns for the "a2ui_audit_logs" table.
	AuditLogsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "event_type", Type: field.TypeString},
		{Name: "surface_id", Type: field.TypeString, Nullable: true},
		{Name: "user_id", Type: field.TypeString, Nullable: true},
		{Name: "agent_id", Type: field.TypeString, Nullable: true},
		{Name: "component_id", Type: field.TypeString, Nullable: true},
		{Name: "component_type", Type: field.TypeString, Nullable: true},
		{Name: "action_id", Type: field.TypeString, Nullable: true},
		{Name: "details", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
	}
	// AuditLogsTable holds the schema information for the "a2ui_audit_logs" table.
	AuditLogsTable = &schema.Table{
		Name:       "a2ui_audit_logs",
		Columns:    AuditLogsColumns,
		PrimaryKey: []*schema.Column{AuditLogsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "a2ui_audit_logs_surface_id", Columns: []*schema.Column{AuditLogsColumns[2]}},
		},
	}

	// ProvidersColumns holds the columns for the "a2ui_providers" table.
	ProvidersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "full_name", Type: field.TypeString},
		{Name: "specialization", Type: field.TypeString, Default: ""},
		{Name: "bio", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "avatar_url", Type: field.TypeString, Default: ""},
		{Name: "expertise", Type: field.TypeJSON},
		{Name: "rating", Type: field.TypeFloat64, Default: 0},
	}
	// ProvidersTable holds the schema information for the "a2ui_providers" table.
	ProvidersTable = &schema.Table{
		Name:       "a2ui_providers",
		Columns:    ProvidersColumns,
		PrimaryKey: []*schema.Column{ProvidersColumns[0]},
	}

	// AppointmentsColumns holds the columns for the "a2ui_appointments" table.
	AppointmentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "provider_id", Type: field.TypeString},
		{Name: "patient_id", Type: field.TypeString},
		{Name: "surface_id", Type: field.TypeString, Nullable: true},
		{Name: "start_time", Type: field.TypeTime},
		{Name: "end_time", Type: field.TypeTime},
		{Name: "status", Type: field.TypeString},
		{Name: "price", Type: field.TypeInt},
		{Name: "notes", Type: field.TypeString, Nullable: true},
		{Name: "meeting_link", Type: field.TypeString, Nullable: true},
		{Name: "room_name", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// AppointmentsTable holds the schema information for the "a2ui_appointments" table.
	AppointmentsTable = &schema.Table{
		Name:       "a2ui_appointments",
		Columns:    AppointmentsColumns,
		PrimaryKey: []*schema.Column{AppointmentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "a2ui_appointments_provider_id_start_time", Columns: []*schema.Column{AppointmentsColumns[1], AppointmentsColumns[4]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		SurfacesTable,
		ActionLogsTable,
		AuditLogsTable,
		ProvidersTable,
		AppointmentsTable,
	}
)
