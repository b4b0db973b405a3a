package ir

import (
	"fmt"
	"strings"
)

// Format renders m and its body as a stable text listing. The output is
// used for golden files and stored alongside recovered transactions.
func Format(m *Method, b *Body) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s\n", m.Key())

	names := make([]string, len(b.Params))
	for i, p := range b.Params {
		names[i] = p.Name
	}
	if b.This != nil {
		fmt.Fprintf(&sb, "  this %s\n", b.This.Name)
	}
	fmt.Fprintf(&sb, "  params (%s)\n", strings.Join(names, ", "))
	for _, l := range b.Locals {
		fmt.Fprintf(&sb, "  local %s %s\n", l.Name, l.Type)
	}
	fmt.Fprintf(&sb, "  entry %s\n", b.Entry)

	for _, blk := range b.Blocks {
		fmt.Fprintf(&sb, "%s:", blk.ID)
		if len(blk.Preds) > 0 {
			fmt.Fprintf(&sb, " ; preds %s", joinIDs(blk.Preds))
		}
		sb.WriteByte('\n')
		for _, s := range blk.Stmts {
			fmt.Fprintf(&sb, "    %s\n", s)
		}
		if blk.Terminator() == nil && len(blk.Succs) > 0 {
			fmt.Fprintf(&sb, "    ; falls through to %s\n", joinIDs(blk.Succs))
		}
	}
	return sb.String()
}

func joinIDs(ids []BlockID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
