package bootstrap

import (
	// Import LLM providers for registration side-effects.
	// Each provider registers itself with the llm registry in init().
	_ "github.com/DevSymphony/fillin/internal/llm/gemini"
	_ "github.com/DevSymphony/fillin/internal/llm/ollama"
	_ "github.com/DevSymphony/fillin/internal/llm/openaiapi"
)

// This file imports LLM provider packages for their init() side-effects.
// The bootstrap package is imported from main.go to ensure all providers are registered.
