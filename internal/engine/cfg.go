package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/roach88/binderscan/internal/ir"
)

// blockHash keys vertices by block name. The DOT template drops edges
// whose target is a zero value, so the numeric id cannot be the key.
func blockHash(b *ir.Block) string { return b.ID.String() }

// ControlFlowGraph builds the block graph of body. With reverse set every
// edge points from successor to predecessor. Vertices carry a "label"
// attribute listing the block's statements, for DOT export.
func ControlFlowGraph(body *ir.Body, reverse bool) (graph.Graph[string, *ir.Block], error) {
	g := graph.New(blockHash, graph.Directed())
	for _, blk := range body.Blocks {
		if err := g.AddVertex(blk, graph.VertexAttribute("label", blockLabel(blk))); err != nil {
			return nil, fmt.Errorf("add %s: %w", blk.ID, err)
		}
	}
	for _, blk := range body.Blocks {
		for _, s := range blk.Succs {
			if body.Block(s) == nil {
				continue
			}
			from, to := blk.ID.String(), s.String()
			if reverse {
				from, to = to, from
			}
			if err := g.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("edge %s -> %s: %w", blk.ID, s, err)
			}
		}
	}
	return g, nil
}

func blockLabel(blk *ir.Block) string {
	var sb strings.Builder
	sb.WriteString(blk.ID.String())
	for _, s := range blk.Stmts {
		sb.WriteString("\\l")
		sb.WriteString(strings.ReplaceAll(s.String(), `"`, `\"`))
	}
	sb.WriteString("\\l")
	return sb.String()
}

// Reachable returns the blocks reachable from start, including start. With
// reverse set it returns the blocks from which start is reachable.
func Reachable(body *ir.Body, start ir.BlockID, reverse bool) (map[ir.BlockID]bool, error) {
	g, err := ControlFlowGraph(body, reverse)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.BlockID]bool)
	err = graph.BFS(g, start.String(), func(v string) bool {
		blk, verr := g.Vertex(v)
		if verr == nil {
			out[blk.ID] = true
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("walk from %s: %w", start, err)
	}
	return out, nil
}

// WriteDOT renders the block graph of body in DOT. Statements are sorted
// so the same body always renders to the same text.
func WriteDOT(w io.Writer, body *ir.Body, reverse bool, label string) error {
	g, err := ControlFlowGraph(body, reverse)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := draw.DOT(g, &buf, draw.GraphAttribute("label", label)); err != nil {
		return fmt.Errorf("render dot: %w", err)
	}

	lines := strings.Split(buf.String(), "\n")
	var stmts []string
	for _, l := range lines {
		if strings.HasPrefix(l, "\t\"") {
			stmts = append(stmts, l)
		}
	}
	slices.Sort(stmts)
	next := 0
	for i, l := range lines {
		if strings.HasPrefix(l, "\t\"") {
			lines[i] = stmts[next]
			next++
		}
	}
	_, err = io.WriteString(w, strings.Join(lines, "\n"))
	return err
}
