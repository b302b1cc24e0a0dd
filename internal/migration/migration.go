package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Script is a single migration file discovered on disk.
type Script struct {
	Filename string // Base name, the ledger's natural key (e.g. "001_init.sql")
	Body     string // File contents, executed verbatim
	Checksum string // SHA-256 hex digest of Body with LF line endings
	Path     string // Full path to the file
}

// ComputeChecksum returns the SHA-256 hex digest of the given SQL string.
// CRLF line endings are hashed as LF so a checkout on another platform is not
// reported as drift.
func ComputeChecksum(sql string) string {
	h := sha256.Sum256([]byte(strings.ReplaceAll(sql, "\r\n", "\n")))

	return hex.EncodeToString(h[:])
}
