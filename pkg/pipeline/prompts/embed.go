// Package prompts holds the markdown prompt templates used by the generator.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
