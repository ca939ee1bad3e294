package agent

import (
	"github.com/richinex/tabula/budget"
	"github.com/richinex/tabula/synth"
)

// Request is one natural-language query against the remote data service.
type Request struct {
	// Query is the user's request text.
	Query string
	// SessionID names the conversation; empty means a one-shot session.
	SessionID string
	// Budget overrides the default grounding budget when non-nil.
	Budget *budget.Budget
}

// Metadata carries execution accounting for one query.
type Metadata struct {
	GroundingTokens    int   `json:"grounding_tokens"`
	GroundingChunks    int   `json:"grounding_chunks"`
	OperationsExecuted int   `json:"operations_executed"`
	RemoteCalls        int64 `json:"remote_calls"`
	CacheHits          int64 `json:"cache_hits"`
	Retries            int64 `json:"retries"`
	ElapsedMs          int64 `json:"elapsed_ms"`
}

// Response is the synthesized answer to one query.
type Response struct {
	Success    bool                    `json:"success"`
	Answer     string                  `json:"answer"`
	Operations []synth.OperationReport `json:"operations,omitempty"`
	Errors     []string                `json:"errors,omitempty"`
	Metadata   Metadata                `json:"metadata"`
}
