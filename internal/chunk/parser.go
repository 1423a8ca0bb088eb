package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// symbolNode is a located, classified AST node returned by parseSymbols.
type symbolNode struct {
	chunkType ChunkType
	startLine int // 1-indexed
	endLine   int // inclusive
	startByte uint32
	endByte   uint32
}

// parseSymbols parses source with cfg's grammar and returns, in document
// order, every node (at any depth) whose type maps to a ChunkType and that
// is not inside another such node; a matched node's children are not searched.
func parseSymbols(ctx context.Context, cfg *languageConfig, source []byte) ([]symbolNode, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(cfg.tsLang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.name, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: nil tree", cfg.name)
	}
	defer tree.Close()

	var out []symbolNode
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if ct, ok := cfg.nodeTypes[n.Type()]; ok {
			out = append(out, symbolNode{
				chunkType: ct,
				startLine: int(n.StartPoint().Row) + 1,
				endLine:   int(n.EndPoint().Row) + 1,
				startByte: n.StartByte(),
				endByte:   n.EndByte(),
			})
			return // don't descend into a matched node's children
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out, nil
}
