package objects

import "time"

// RelationType enumerates the canonical directed edge types (§3.3).
type RelationType string

const (
	RelContains   RelationType = "contains"
	RelDefinedIn  RelationType = "defined_in"
	RelDependsOn  RelationType = "depends_on"
	RelCalls      RelationType = "calls"
	RelImplements RelationType = "implements"
	RelJustifiedBy RelationType = "justified_by"
	RelModifies   RelationType = "modifies"
	RelProduced   RelationType = "produced"
	RelPartOf     RelationType = "part_of"
)

// Relationship is a directed, typed edge between two stored objects.
type Relationship struct {
	ID        string                 `json:"id"`
	SourceID  string                 `json:"source_id"`
	Type      RelationType           `json:"type"`
	TargetID  string                 `json:"target_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Direction selects which side of an adjacency list a traversal walks.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionBoth     Direction = "both"
)

// CacheItemKind enumerates the kind of a cache block item (§3.2).
type CacheItemKind string

const (
	CacheItemFact     CacheItemKind = "fact"
	CacheItemDecision CacheItemKind = "decision"
	CacheItemSnippet  CacheItemKind = "snippet"
	CacheItemWarning  CacheItemKind = "warning"
)

// CacheItem is a single entry inside an episodic cache block.
type CacheItem struct {
	Kind        CacheItemKind `json:"kind"`
	Content     string        `json:"content"`
	Importance  float64       `json:"importance"`
	FileRef     string        `json:"file_ref,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Embedding   []float32     `json:"embedding,omitempty"`
}

// BlockStatus enumerates a CacheBlock's open/closed lifecycle state.
type BlockStatus string

const (
	BlockOpen   BlockStatus = "open"
	BlockClosed BlockStatus = "closed"
)

// CacheBlock is a scoped, append-only window of CacheItems (§3.1, §4.3).
type CacheBlock struct {
	Envelope
	ScopeID    string      `json:"scope_id"`
	Sequence   int         `json:"sequence"`
	Status     BlockStatus `json:"status"`
	Items      []CacheItem `json:"items"`
	TokenCount int         `json:"token_count"`
	Summary    string      `json:"summary,omitempty"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
}

func (b *CacheBlock) EmbeddingText() string { return b.Summary }
