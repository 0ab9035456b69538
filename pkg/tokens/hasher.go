// Package tokens derives the opaque tokens that stand in for numeric ids in
// referral links and cookies.
//
// Tokens are one-way: a token is resolved by looking it up in the stored
// token index, never by decoding it. The derivation key comes from
// configuration so links in emails sent long ago keep resolving.
package tokens

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

type Scope string

const (
	MemberScope    Scope = "member"
	SentEmailScope Scope = "sent_email"
)

const tokenBytes = 16

type Hasher struct {
	scope Scope
	key   [32]byte
}

// NewHasher returns a Hasher whose tokens only match within scope: the same
// id produces unrelated tokens in different scopes.
func NewHasher(secret string, scope Scope) *Hasher {
	h := &Hasher{scope: scope}
	blake3.DeriveKey("petitionator "+string(scope)+" token v1", []byte(secret), h.key[:])
	return h
}

func (h *Hasher) Scope() Scope {
	return h.scope
}

func (h *Hasher) Generate(id uint) string {
	// NewKeyed only fails on a key that is not 32 bytes long.
	hasher, _ := blake3.NewKeyed(h.key[:])

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	hasher.Write(buf[:])

	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:tokenBytes])
}
