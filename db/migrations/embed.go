// Package dbmigrations exposes the embedded SQL migrations of the record store.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into assetproof binaries.
//
//go:embed *.sql
var Files embed.FS
