package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainBody prefixes body fingerprints. The version suffix allows the
// canonical form to change without colliding with old fingerprints.
const DomainBody = "binderscan/body/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalBody returns the structure fingerprinted by Fingerprint. Local
// identity is dropped: two bodies that print the same hash the same.
func CanonicalBody(ret Type, b *Body) map[string]any {
	locals := make([]any, len(b.Locals))
	for i, l := range b.Locals {
		locals[i] = map[string]any{"name": l.Name, "type": string(l.Type)}
	}
	params := make([]any, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.Name
	}
	blocks := make([]any, len(b.Blocks))
	for i, blk := range b.Blocks {
		stmts := make([]any, len(blk.Stmts))
		for j, s := range blk.Stmts {
			stmts[j] = s.String()
		}
		succs := make([]any, len(blk.Succs))
		for j, s := range blk.Succs {
			succs[j] = int64(s)
		}
		blocks[i] = map[string]any{
			"id":    int64(blk.ID),
			"stmts": stmts,
			"succs": succs,
		}
	}
	return map[string]any{
		"return": string(ret),
		"entry":  int64(b.Entry),
		"locals": locals,
		"params": params,
		"blocks": blocks,
	}
}

// Fingerprint computes a content hash of m's body. Slices taken twice from
// the same source block fingerprint identically.
func Fingerprint(m *Method, b *Body) (string, error) {
	data, err := MarshalCanonical(CanonicalBody(m.Return, b))
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", m, err)
	}
	return hashWithDomain(DomainBody, data), nil
}
