package ledger

import _ "embed"

// Schema creates the asset type, wallet and ledger entry tables. Every
// statement is idempotent.
//
//go:embed schema.sql
var Schema string
