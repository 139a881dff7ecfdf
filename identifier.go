package exq

import (
	"crypto/rand"
	"fmt"
	"io"
)

// generateJid returns 16 random bytes as a 32-character hex string -- the
// 128-bit hex identifier spec.md §3 requires. Grounded on the teacher's
// makeIdentifier and vendor/.../go-workers/enqueue.go's generateJid, both
// of which use crypto/rand + hex but at a narrower 96-bit width.
func generateJid() string {
	b := make([]byte, 16)
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", b)
}

// makeIdentifier generates an opaque process/worker identifier, used for
// process registry entries (C4) where 128 bits of entropy would be
// overkill.
func makeIdentifier() string {
	b := make([]byte, 12)
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", b)
}
