// README: Opaque identifiers shared by trips, routes and users.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

type ID string

func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}

func (id ID) String() string { return string(id) }
