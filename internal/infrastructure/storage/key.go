// Package storage holds the profile image stores. Objects are written under
// generated keys, never under caller-supplied names.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const userImageDir = "users"

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// objectKey builds users/<uuid><ext>, keeping only a known image extension
// from the uploaded name.
func objectKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !allowedExt[ext] {
		ext = ""
	}
	return userImageDir + "/" + uuid.NewString() + ext
}
