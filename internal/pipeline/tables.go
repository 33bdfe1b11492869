package pipeline

// ManagedTables is the fixed, ordered set of tables this pipeline owns.
// The same list drives extraction, clearing, and loading: no table is
// cleared without also being restored, and vice versa.
var ManagedTables = []string{
	"auth.audit_log_entries",
	"auth.mfa_amr_claims",
	"auth.refresh_tokens",
	"auth.sessions",
	"auth.schema_migrations",
}

// deleteOrder clears dependent rows before their parents so the row-delete
// fallback never trips a foreign key.
var deleteOrder = []string{
	"auth.mfa_amr_claims",
	"auth.refresh_tokens",
	"auth.sessions",
	"auth.audit_log_entries",
	"auth.schema_migrations",
}
