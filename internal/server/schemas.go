package server

import "encoding/json"

// Tool schemas manually crafted so strict client-side validators accept
// them; the SDK's generated schemas trip some of those validators.

var searchToolsInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Search query for tool names and descriptions"
		},
		"server": {
			"type": "string",
			"description": "Filter to one server; a toolset/server key or a bare server id"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum number of results to return (default: 20, max: 100)"
		},
		"offset": {
			"type": "integer",
			"description": "Number of results to skip for pagination (default: 0)"
		}
	},
	"additionalProperties": false
}`)

var searchToolsOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"tools": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"raw_name": {"type": "string"},
					"display_name": {"type": "string"},
					"description": {"type": "string"},
					"input_schema": {"type": "object", "additionalProperties": true},
					"renderer": {"type": "string"},
					"requires_confirmation": {"type": "boolean"}
				},
				"required": ["id", "raw_name", "display_name"]
			}
		},
		"total": {"type": "integer", "description": "Total number of matching tools before pagination"},
		"limit": {"type": "integer"},
		"offset": {"type": "integer"},
		"has_more": {"type": "boolean", "description": "True if more results are available beyond this page"}
	},
	"required": ["tools", "total", "limit", "offset", "has_more"],
	"additionalProperties": false
}`)

var callToolInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"server": {
			"type": "string",
			"description": "Target server; a toolset/server key or a bare server id"
		},
		"tool": {
			"type": "string",
			"description": "Tool to invoke on the server"
		},
		"arguments": {
			"type": "object",
			"description": "Tool arguments to pass through",
			"additionalProperties": true
		}
	},
	"required": ["server", "tool"],
	"additionalProperties": false
}`)

var callToolOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"output": {"type": "string", "description": "Normalized tool output text"}
	},
	"required": ["output"],
	"additionalProperties": false
}`)

var listServersInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"toolset": {
			"type": "string",
			"description": "Filter to servers of one toolset"
		}
	},
	"additionalProperties": false
}`)

var listServersOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"servers": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"key": {"type": "string"},
					"toolset": {"type": "string"},
					"server": {"type": "string"},
					"kind": {"type": "string"},
					"status": {"type": "string"},
					"error": {"type": "string"},
					"tool_count": {"type": "integer"},
					"command": {"type": "string"},
					"url": {"type": "string"},
					"env": {"type": "object", "additionalProperties": true},
					"requires_confirmation": {"type": "boolean"}
				},
				"required": ["key", "toolset", "server", "kind", "status"]
			}
		}
	},
	"required": ["servers"],
	"additionalProperties": false
}`)

var manageServersInputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["list", "disconnect", "reconnect", "remove", "rename"],
			"description": "Management action to perform"
		},
		"server": {
			"type": "string",
			"description": "Target server; required for every action except list"
		},
		"new_name": {
			"type": "string",
			"description": "New server id or toolset/server key; required for rename"
		}
	},
	"required": ["action"],
	"additionalProperties": false
}`)

var manageServersOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {"type": "string"},
		"servers": {
			"type": "array",
			"items": {"type": "object", "additionalProperties": true}
		}
	},
	"required": ["status"],
	"additionalProperties": false
}`)
