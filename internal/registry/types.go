package registry

// FieldType is the declared type of a table field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldBoolean    FieldType = "boolean"
	FieldDatetime   FieldType = "datetime"
	FieldAttachment FieldType = "attachment"
	FieldLink       FieldType = "link"
	FieldFormula    FieldType = "formula"
	FieldAuto       FieldType = "auto"
	FieldJSON       FieldType = "json"
)

// IsNumeric reports whether values of this type are ordered numbers.
// Auto fields are auto-incrementing integers on the platform side.
func (t FieldType) IsNumeric() bool {
	return t == FieldNumber || t == FieldAuto
}

// IsStringLike reports whether values of this type render as text,
// making substring and fuzzy filters meaningful without coercion.
func (t FieldType) IsStringLike() bool {
	return t == FieldString || t == FieldFormula || t == FieldJSON
}

// Constraints holds the optional declared constraints of a field.
type Constraints struct {
	Required  bool     `json:"required,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Relationship describes where a link field points.
type Relationship struct {
	Kind        string `json:"kind"`
	TargetTable string `json:"target_table"`
}

// FieldDef is the full declared definition of a single field.
type FieldDef struct {
	Type         FieldType      `json:"type"`
	Constraints  *Constraints   `json:"constraints,omitempty"`
	Relationship *Relationship  `json:"relationship,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// Schema maps field name to definition. Field order is irrelevant:
// two schemas with the same entries are the same schema.
type Schema map[string]FieldDef

// Application is one remote application, upserted on every sync.
type Application struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	URL        string         `json:"url,omitempty"`
	Status     string         `json:"status,omitempty"`
	LastSynced string         `json:"last_synced,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
}

// TableKind distinguishes real tables from views.
type TableKind string

const (
	KindTable TableKind = "table"
	KindView  TableKind = "view"
)

// Table is one remote table with its current schema snapshot.
type Table struct {
	ID             string    `json:"id"`
	AppID          string    `json:"app_id"`
	Name           string    `json:"name"`
	Kind           TableKind `json:"type"`
	PrimaryDisplay string    `json:"primary_display,omitempty"`
	Schema         Schema    `json:"schema"`
	LastSynced     string    `json:"last_synced,omitempty"`
	CreatedAt      string    `json:"created_at,omitempty"`
	UpdatedAt      string    `json:"updated_at,omitempty"`
}

// SchemaVersion is one immutable, append-only schema snapshot.
// For a given table, versions form an unbroken sequence 1..N.
type SchemaVersion struct {
	ID        int64  `json:"id"`
	AppID     string `json:"app_id"`
	TableID   string `json:"table_id"`
	Version   int    `json:"version"`
	Schema    Schema `json:"schema"`
	Checksum  string `json:"checksum"`
	CreatedAt string `json:"created_at"`
}

// SchemaChange is published to subscribers after a new version is
// appended. Previous is nil for a table's first version.
type SchemaChange struct {
	AppID    string `json:"app_id"`
	TableID  string `json:"table_id"`
	Version  int    `json:"version"`
	Previous Schema `json:"previous_schema,omitempty"`
	New      Schema `json:"new_schema"`
}
