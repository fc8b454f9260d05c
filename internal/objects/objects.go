// Package objects defines the AMP data model: the base envelope shared
// by every stored object, its eight typed variants, cache items, and
// relationship edges.
package objects

import (
	"time"

	"github.com/google/uuid"
)

// Type is the discriminant tag carried on the wire and in storage.
type Type string

const (
	TypeSymbol     Type = "symbol"
	TypeFileChunk  Type = "file_chunk"
	TypeFileLog    Type = "file_log"
	TypeDecision   Type = "decision"
	TypeChangeSet  Type = "change_set"
	TypeNote       Type = "note"
	TypeRun        Type = "run"
	TypeCacheBlock Type = "cache_block"
)

// Provenance is attached to every object: who created it, in what
// context, and an optional reference back to the run that produced it.
type Provenance struct {
	Agent     string `json:"agent"`
	Summary   string `json:"summary,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Edge is an outbound relationship reference embedded on the base
// envelope; the authoritative adjacency lives in the relationship
// graph maintained by the store (see internal/objects.Relationship).
type Edge struct {
	Type     RelationType `json:"type"`
	TargetID string       `json:"target_id"`
}

// Envelope is the base fields every object variant carries.
type Envelope struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	TenantID  string     `json:"tenant_id"`
	ProjectID string     `json:"project_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Provenance Provenance `json:"provenance"`
	Edges     []Edge     `json:"edges,omitempty"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// NewEnvelope stamps a fresh identifier and timestamps for a new object
// of the given type. Callers fill in the variant-specific fields.
func NewEnvelope(typ Type, tenantID, projectID string, prov Provenance) Envelope {
	now := time.Now().UTC()
	return Envelope{
		ID:         uuid.New().String(),
		Type:       typ,
		TenantID:   tenantID,
		ProjectID:  projectID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Provenance: prov,
	}
}

// Touch refreshes UpdatedAt to the current wall-clock time, as every
// mutation must per the store contract.
func (e *Envelope) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// SymbolKind enumerates the recognized symbol kinds. Parser-reported
// kinds outside this set pass through unchanged as free-form strings,
// per the indexing pipeline's "pass through as-is" allowance.
type SymbolKind string

const (
	SymbolKindFile      SymbolKind = "file"
	SymbolKindDirectory SymbolKind = "directory"
	SymbolKindFunction  SymbolKind = "function"
	SymbolKindClass     SymbolKind = "class"
	SymbolKindMethod    SymbolKind = "method"
	SymbolKindVariable  SymbolKind = "variable"
	SymbolKindInterface SymbolKind = "interface"
	SymbolKindModule    SymbolKind = "module"
	SymbolKindProject   SymbolKind = "project"
)

// Symbol is a code entity discovered by the indexing pipeline or
// declared directly by a caller.
type Symbol struct {
	Envelope
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Path          string `json:"path"`
	Language      string `json:"language,omitempty"`
	ContentHash   string `json:"content_hash,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// EmbeddingText implements the C1 text-extraction contract for Symbol.
func (s *Symbol) EmbeddingText() string {
	text := s.Name
	if s.Signature != "" {
		text += " " + s.Signature
	}
	if s.Documentation != "" {
		text += " " + s.Documentation
	}
	return text
}

// FileChunk is a size-bounded slice of a file's content.
type FileChunk struct {
	Envelope
	ParentPath  string `json:"parent_path"`
	ChunkIndex  int    `json:"chunk_index"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	TokenCount  int    `json:"token_count"`
	Content     string `json:"content"`
	Language    string `json:"language,omitempty"`
	ContentHash string `json:"content_hash"`
}

func (c *FileChunk) EmbeddingText() string { return c.Content }

// AuditAction enumerates a FileLog audit entry's action kind.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionEdit   AuditAction = "edit"
	AuditActionDelete AuditAction = "delete"
)

// AuditEntry is a single FileLog history row.
type AuditEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Action    AuditAction `json:"action"`
	Summary   string      `json:"summary,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	Agent     string      `json:"agent,omitempty"`
}

// FileLog is the per-file audit trail and rolling summary.
type FileLog struct {
	Envelope
	FilePath       string       `json:"file_path"`
	Summary        string       `json:"summary"`
	MarkdownSummary string      `json:"markdown_summary,omitempty"`
	KeySymbols     []string     `json:"key_symbols,omitempty"`
	Dependencies   []string     `json:"dependencies,omitempty"`
	AuditTrail     []AuditEntry `json:"audit_trail"`
	ChangeCount    int          `json:"change_count"`
}

func (f *FileLog) EmbeddingText() string {
	text := f.FilePath + " " + f.Summary
	if len(f.KeySymbols) > 0 {
		text += " "
		for i, s := range f.KeySymbols {
			if i > 0 {
				text += " "
			}
			text += s
		}
	}
	return text
}

// AppendAudit records an audit entry and keeps the change counter in
// lockstep with the trail's length (invariant 3.4.3).
func (f *FileLog) AppendAudit(entry AuditEntry) {
	f.AuditTrail = append(f.AuditTrail, entry)
	f.ChangeCount = len(f.AuditTrail)
}

// DecisionStatus enumerates a Decision's lifecycle state.
type DecisionStatus string

const (
	DecisionProposed   DecisionStatus = "proposed"
	DecisionAccepted   DecisionStatus = "accepted"
	DecisionDeprecated DecisionStatus = "deprecated"
	DecisionSuperseded DecisionStatus = "superseded"
)

// Decision is an architecture-decision-record style object.
type Decision struct {
	Envelope
	Title        string         `json:"title"`
	Context      string         `json:"context"`
	DecisionText string         `json:"decision"`
	Consequences string         `json:"consequences"`
	Alternatives []string       `json:"alternatives,omitempty"`
	Status       DecisionStatus `json:"status"`
}

func (d *Decision) EmbeddingText() string {
	return d.Title + " " + d.Context + " " + d.DecisionText + " " + d.Consequences
}

// ChangeSet records a logical group of file changes.
type ChangeSet struct {
	Envelope
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	FilesChanged []string `json:"files_changed"`
	DiffSummary  string   `json:"diff_summary"`
	DecisionIDs  []string `json:"decision_ids,omitempty"`
}

func (c *ChangeSet) EmbeddingText() string {
	return c.Title + " " + c.Description + " " + c.DiffSummary
}

// NoteCategory enumerates a Note's category tag.
type NoteCategory string

const (
	NoteCategoryInsight  NoteCategory = "insight"
	NoteCategoryTodo     NoteCategory = "todo"
	NoteCategoryQuestion NoteCategory = "question"
	NoteCategoryWarning  NoteCategory = "warning"
	NoteCategoryReference NoteCategory = "reference"
)

// Note is a free-text/markdown annotation linkable to other objects.
type Note struct {
	Envelope
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Category      NoteCategory `json:"category"`
	LinkedObjectIDs []string   `json:"linked_object_ids,omitempty"`
}

func (n *Note) EmbeddingText() string { return n.Title + " " + n.Content }

// RunStatus enumerates a Run's lifecycle state.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunOutput is an artifact emitted during a Run.
type RunOutput struct {
	Type     string                 `json:"type"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RunError is a structured failure recorded against a Run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunFocus tracks a Run's current plan, if the agent chose to record one.
type RunFocus struct {
	Title            string   `json:"title"`
	PlanSteps        []string `json:"plan_steps,omitempty"`
	CompletionSummary string  `json:"completion_summary,omitempty"`
}

// Run is a record of an agent's execution session.
type Run struct {
	Envelope
	Goal      string      `json:"goal"`
	AgentName string      `json:"agent_name"`
	RepoID    string      `json:"repo_id,omitempty"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Status    RunStatus   `json:"status"`
	Outputs   []RunOutput `json:"outputs,omitempty"`
	Errors    []RunError  `json:"errors,omitempty"`
	Focus     *RunFocus   `json:"focus,omitempty"`
}

func (r *Run) EmbeddingText() string { return r.Goal }

// ObjectWithText is implemented by every variant that carries
// indexable text, per the C1 text-extraction contract (§4.6).
type ObjectWithText interface {
	EmbeddingText() string
}
