package xid

import (
	"github.com/google/uuid"
)

// New returns prefix-<uuid v4>, or a bare uuid when prefix is empty.
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
