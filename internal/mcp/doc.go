// Package mcp implements the Model Context Protocol (MCP) server for whispernote.
//
// The MCP server exposes three tools to AI assistants:
//   - index_notes: Index a directory of notes
//   - query_notes: Answer a question from the indexed notes
//   - get_status: Report what the index holds
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol. The server speaks it over stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// and, when mounted by the HTTP server, over streamable HTTP at /mcp.
//
// # Tool: index_notes
//
//	Request:
//	{
//	  "name": "index_notes",
//	  "arguments": {
//	    "path": "/home/me/notes",
//	    "file_extensions": [".md", ".txt"]
//	  }
//	}
//
//	Response:
//	{
//	  "file_count": 12,
//	  "chunk_count": 57,
//	  "files_skipped": 230,
//	  "extensions_indexed": [".md", ".txt"]
//	}
//
// Files whose content hash is already indexed are skipped. Files that fail
// are listed under "failed_files" (first five) and never fail the call.
//
// # Tool: query_notes
//
//	Request:
//	{
//	  "name": "query_notes",
//	  "arguments": {"question": "What did I decide about the launch last week?", "max_results": 5}
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "sources": [{"id": "<hash>::chunk0", "file": "/home/me/notes/launch.md", "distance": 0.21, "text": "..."}]
//	}
//
// # Tool: get_status
//
// Takes no arguments and returns the same counters as index_notes for the
// whole index, plus "indexed".
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "whispernote": {
//	      "command": "/usr/local/bin/whispernote",
//	      "args": ["mcp"],
//	      "env": {
//	        "OPENROUTER_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32002: Indexing in progress
//   - -32004: Empty question
//   - -32005: Embedding or language model provider failed
//
// # Logging
//
// The MCP server logs to stderr only. stdout is reserved for the protocol.
package mcp
