package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/binderscan/internal/ir"
)

// marshalChain converts a method-key chain to canonical JSON TEXT.
func marshalChain(chain []string) (string, error) {
	arr := make([]any, len(chain))
	for i, k := range chain {
		arr[i] = k
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal chain: %w", err)
	}
	return string(data), nil
}

// unmarshalChain parses a stored chain. Empty text is an empty chain.
func unmarshalChain(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return []string{}, nil
	}
	var chain []string
	if err := json.Unmarshal([]byte(data), &chain); err != nil {
		return nil, fmt.Errorf("unmarshal chain: %w", err)
	}
	return chain, nil
}

// boolParam maps an optional flag to a nullable column.
func boolParam(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// nullableBool is the inverse of boolParam.
func nullableBool(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	b := n.Bool
	return &b
}
