// Package llm provides the language model capability used to answer
// questions and extract time ranges.
//
// Two providers are available:
//   - Ollama: streams the /api/chat NDJSON response from a local server
//   - OpenRouter: posts OpenAI-format chat completions with a bearer key
//
// Both send a fixed system message followed by the prompt as the user
// message. Transport failures are returned as errors wrapping
// types.ErrUpstream.
package llm
