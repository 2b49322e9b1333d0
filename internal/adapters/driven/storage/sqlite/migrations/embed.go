// Package migrations holds the schema for the chat history and scheduler databases.
package migrations

import "embed"

// FS holds the numbered *.up.sql files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
