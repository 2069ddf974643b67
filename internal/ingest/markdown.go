// ABOUTME: Markdown to plain text conversion for ingested documents
// ABOUTME: Walks the goldmark AST, using the first top-level heading as the title

package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownToText parses markdown and flattens it to plain text. The first
// level-1 heading becomes the title and is excluded from the body.
func markdownToText(src []byte) (title, body string) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && title == "" {
			title = string(nodeText(h, src))
			return ast.WalkSkipChildren, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.CodeBlock:
			writeLines(&sb, t, src)
		case *ast.FencedCodeBlock:
			writeLines(&sb, t, src)
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return title, strings.TrimSpace(sb.String())
}

func nodeText(n ast.Node, src []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(src)...)
		}
	}
	return out
}

func writeLines(sb *strings.Builder, n ast.Node, src []byte) {
	lines := n.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
}
