package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexNotesTool returns the tool definition for index_notes
func indexNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_notes",
		Description: "Index a directory of personal notes so they can be queried. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the notes directory",
				},
				"file_extensions": map[string]interface{}{
					"type":        "array",
					"description": "Only index files with these extensions (e.g. [\".md\", \".txt\"]). All files when omitted.",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path"},
		},
	}
}

// queryNotesTool returns the tool definition for query_notes
func queryNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_notes",
		Description: "Answer a question from the indexed notes. Time expressions such as \"last week\" restrict the notes consulted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of note passages used as context (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"question"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report how many files and passages the notes index holds",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
