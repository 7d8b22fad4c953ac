package mcp

import (
	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/engine"
)

// --- Tool Arguments ---

type InvokeArgs struct {
	Root   string       `json:"root" jsonschema:"The node the program runs against; codes of set/append/asign hang off it"`
	IncV   []engine.Inc `json:"inc_v" jsonschema:"The instructions, each a source/code/target triple; code is the opcode"`
	DryRun bool         `json:"dry_run,omitempty" jsonschema:"If true the staged writes are discarded instead of committed"`
}

type InvokeResult struct {
	Result    string `json:"result"`
	Committed bool   `json:"committed"`
}

type ResolvePathArgs struct {
	Path string `json:"path" jsonschema:"A path such as 'root->code<-code'; arrows -> follow edges forward and <- backward"`
	Root string `json:"root,omitempty" jsonschema:"Start node when the path has no root part"`
}

type ResolvePathResult struct {
	Points []string `json:"points"`
}

type DumpNodeArgs struct {
	Node string `json:"node" jsonschema:"The node whose reachable subgraph is rendered"`
}

type DumpNodeResult struct {
	Tree string `json:"tree"`
}

type ListArgs struct {
	Root       string   `json:"root" jsonschema:"The node the table starts from"`
	Dimensions []string `json:"dimensions" jsonschema:"Codes followed forward in order, one row per reached combination"`
	Attrs      []string `json:"attrs,omitempty" jsonschema:"Codes read as columns from the last reached node"`
}

type ListResult struct {
	Rows []edge.Record `json:"rows"`
}
