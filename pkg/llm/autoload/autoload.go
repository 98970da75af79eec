// Package autoload links every provider factory into the binary.
package autoload

import (
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/llm/gemini"
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/llm/ollama"
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/llm/openailm"
)
