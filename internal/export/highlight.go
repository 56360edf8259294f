// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	gmutil "github.com/yuin/goldmark/util"
)

// =============================================================================
// CODE BLOCK HIGHLIGHTING
// =============================================================================

// codeBlockRenderer renders fenced code blocks with chroma inline styles.
// It is registered ahead of goldmark's default code block renderer.
type codeBlockRenderer struct {
	style string
}

func newCodeBlockRenderer(theme string) renderer.NodeRenderer {
	style := "monokai"
	if theme == "light" {
		style = "github"
	}
	return &codeBlockRenderer{style: style}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w gmutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	language := ""
	if n.Info != nil {
		language = string(n.Language(source))
	}

	if err := highlightCode(w, code.String(), language, r.style); err != nil {
		// Fall back to a plain escaped block.
		_, _ = w.WriteString("<pre><code>")
		_, _ = w.WriteString(html.EscapeString(code.String()))
		_, _ = w.WriteString("</code></pre>\n")
	}
	return ast.WalkSkipChildren, nil
}

// highlightCode writes code as an inline-styled HTML <pre> block.
func highlightCode(w gmutil.BufWriter, code, language, style string) error {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	s := chromaStyles.Get(style)
	if s == nil {
		s = chromaStyles.Fallback
	}

	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}

	// Render into a buffer so a formatter error leaves w untouched.
	var buf bytes.Buffer
	if err := formatter.Format(&buf, s, iterator); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
