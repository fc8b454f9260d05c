package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/objects"
)

// rpcEnvelope is the wire frame for the ws://host:port/rpc store
// transport: a request carries a method name and raw params, a
// response echoes the request id with either a result or an error.
type rpcEnvelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *amperrors.Error `json:"error,omitempty"`
}

// RemoteStore implements ObjectStore over a persistent websocket
// connection to a remote AMP server, selected by database_url=ws://...
// Calls are request/response over the single connection, serialized by
// a request id so concurrent callers don't cross streams.
type RemoteStore struct {
	conn *websocket.Conn
	// writeMu serializes frame writes; the connection allows one
	// concurrent writer.
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcEnvelope

	closeOnce sync.Once
}

// DialRemoteStore opens a websocket connection to url (e.g.
// ws://host:port/rpc) and starts the background read loop that
// dispatches responses to their waiting callers.
func DialRemoteStore(ctx context.Context, url string) (*RemoteStore, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote store: dial %s failed: %w", url, err)
	}
	rs := &RemoteStore{conn: conn, pending: make(map[uint64]chan rpcEnvelope)}
	go rs.readLoop()
	return rs, nil
}

func (r *RemoteStore) readLoop() {
	for {
		var env rpcEnvelope
		if err := r.conn.ReadJSON(&env); err != nil {
			r.failAllPending(err)
			return
		}
		r.mu.Lock()
		ch, ok := r.pending[env.ID]
		if ok {
			delete(r.pending, env.ID)
		}
		r.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (r *RemoteStore) failAllPending(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.pending {
		ch <- rpcEnvelope{ID: id, Error: amperrors.Internal("RPC_CONNECTION_CLOSED", err.Error())}
	}
	r.pending = make(map[uint64]chan rpcEnvelope)
}

func (r *RemoteStore) call(ctx context.Context, method string, params, result interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("remote store: marshal params: %w", err)
	}

	id := atomic.AddUint64(&r.nextID, 1)
	respCh := make(chan rpcEnvelope, 1)
	r.mu.Lock()
	r.pending[id] = respCh
	r.mu.Unlock()

	req := rpcEnvelope{ID: id, Method: method, Params: paramsJSON}
	r.writeMu.Lock()
	err = r.conn.WriteJSON(req)
	r.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("remote store: write failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return amperrors.Cancelled(method)
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("remote store: unmarshal result: %w", err)
			}
		}
		return nil
	}
}

func (r *RemoteStore) Close() error {
	var err error
	r.closeOnce.Do(func() { err = r.conn.Close() })
	return err
}

type putParams struct {
	Envelope *objects.Envelope `json:"envelope"`
	Variant  interface{}       `json:"variant"`
}

func (r *RemoteStore) Put(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	return r.call(ctx, "put", putParams{Envelope: env, Variant: variant}, nil)
}

func (r *RemoteStore) PutBatch(ctx context.Context, items []PutItem) ([]BatchResult, error) {
	var out []BatchResult
	params := make([]putParams, len(items))
	for i, it := range items {
		params[i] = putParams{Envelope: it.Envelope, Variant: it.Variant}
	}
	if err := r.call(ctx, "put_batch", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteStore) Get(ctx context.Context, id string) (*Record, error) {
	var raw json.RawMessage
	if err := r.call(ctx, "get", map[string]string{"id": id}, &raw); err != nil {
		return nil, err
	}
	var typed struct {
		Type     objects.Type    `json:"type"`
		Envelope json.RawMessage `json:"envelope"`
		Variant  json.RawMessage `json:"variant"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("remote store: decode get result: %w", err)
	}
	return decodeRecord(typed.Type, string(typed.Envelope), string(typed.Variant))
}

func (r *RemoteStore) Update(ctx context.Context, id string, env *objects.Envelope, variant interface{}) error {
	return r.call(ctx, "update", map[string]interface{}{"id": id, "envelope": env, "variant": variant}, nil)
}

func (r *RemoteStore) Delete(ctx context.Context, id string) error {
	return r.call(ctx, "delete", map[string]string{"id": id}, nil)
}

func (r *RemoteStore) List(ctx context.Context, filter Filter, limit int) ([]*Record, error) {
	var raws []json.RawMessage
	if err := r.call(ctx, "list", map[string]interface{}{"filter": filter, "limit": limit}, &raws); err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(raws))
	for _, raw := range raws {
		var typed struct {
			Type     objects.Type    `json:"type"`
			Envelope json.RawMessage `json:"envelope"`
			Variant  json.RawMessage `json:"variant"`
		}
		if err := json.Unmarshal(raw, &typed); err != nil {
			continue
		}
		rec, err := decodeRecord(typed.Type, string(typed.Envelope), string(typed.Variant))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RemoteStore) PutRelationship(ctx context.Context, rel *objects.Relationship) error {
	return r.call(ctx, "put_relationship", rel, nil)
}

func (r *RemoteStore) ListRelationships(ctx context.Context, sourceID string) ([]*objects.Relationship, error) {
	var out []*objects.Relationship
	if err := r.call(ctx, "list_relationships", map[string]string{"source_id": sourceID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteStore) Neighbors(ctx context.Context, id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error) {
	var raws []json.RawMessage
	params := map[string]interface{}{"id": id, "direction": dir, "types": types}
	if err := r.call(ctx, "neighbors", params, &raws); err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(raws))
	for _, raw := range raws {
		var typed struct {
			Type     objects.Type    `json:"type"`
			Envelope json.RawMessage `json:"envelope"`
			Variant  json.RawMessage `json:"variant"`
		}
		if err := json.Unmarshal(raw, &typed); err != nil {
			continue
		}
		rec, err := decodeRecord(typed.Type, string(typed.Envelope), string(typed.Variant))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RemoteStore) VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]ScoredID, error) {
	var out []ScoredID
	params := map[string]interface{}{"query_vector": queryVector, "top_k": topK}
	if err := r.call(ctx, "vector_search", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteStore) Counts(ctx context.Context) (int, int, error) {
	var out struct {
		ObjectCount       int `json:"object_count"`
		RelationshipCount int `json:"relationship_count"`
	}
	if err := r.call(ctx, "counts", nil, &out); err != nil {
		return 0, 0, err
	}
	return out.ObjectCount, out.RelationshipCount, nil
}

func (r *RemoteStore) NuclearDelete(ctx context.Context) (int, int, error) {
	var out struct {
		ObjectCount       int `json:"object_count"`
		RelationshipCount int `json:"relationship_count"`
	}
	if err := r.call(ctx, "nuclear_delete", nil, &out); err != nil {
		return 0, 0, err
	}
	return out.ObjectCount, out.RelationshipCount, nil
}

// DefaultDialTimeout bounds how long DialRemoteStore waits for the
// handshake before giving up.
const DefaultDialTimeout = 10 * time.Second
