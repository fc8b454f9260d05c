package query

import (
	"context"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// TraversalAlgorithm selects how a graph query walks the adjacency
// graph (§4.2).
type TraversalAlgorithm string

const (
	AlgorithmCollect  TraversalAlgorithm = "collect"
	AlgorithmPath     TraversalAlgorithm = "path"
	AlgorithmShortest TraversalAlgorithm = "shortest"
)

// GraphOptions parameterizes a graph-mode query.
type GraphOptions struct {
	Seeds         []string
	Direction     objects.Direction
	RelationTypes []objects.RelationType
	Depth         int
	Algorithm     TraversalAlgorithm
	Target        string // required by AlgorithmShortest
}

// GraphHit is one traversal result: the node reached and, for
// algorithms that report one, the ordered path of records walked to
// reach it (seed first).
type GraphHit struct {
	Record *store.Record
	Path   []*store.Record
}

// runGraph dispatches to the requested traversal algorithm after
// validating depth (§4.2: 1..10, >10 rejected; 0 returns the seeds
// themselves for every algorithm).
func runGraph(ctx context.Context, st store.ObjectStore, opts GraphOptions) ([]GraphHit, error) {
	if opts.Depth < 0 || opts.Depth > 10 {
		return nil, amperrors.Validation("depth", "must be between 0 and 10", opts.Depth)
	}
	if len(opts.Seeds) == 0 {
		return nil, amperrors.Validation("seeds", "at least one seed id is required", opts.Seeds)
	}

	if opts.Depth == 0 {
		hits := make([]GraphHit, 0, len(opts.Seeds))
		for _, id := range opts.Seeds {
			rec, err := st.Get(ctx, id)
			if err != nil {
				continue
			}
			hits = append(hits, GraphHit{Record: rec, Path: []*store.Record{rec}})
		}
		return hits, nil
	}

	switch opts.Algorithm {
	case AlgorithmPath:
		return collectPaths(ctx, st, opts)
	case AlgorithmShortest:
		if opts.Target == "" {
			return nil, amperrors.Validation("target", "required for the shortest algorithm", opts.Target)
		}
		return shortestPath(ctx, st, opts)
	default: // AlgorithmCollect and unset default to collect
		return collectReachable(ctx, st, opts)
	}
}

// collectReachable performs a breadth-first walk from opts.Seeds and
// returns every unique node reached within opts.Depth hops, with no
// path information (§4.2 "collect").
func collectReachable(ctx context.Context, st store.ObjectStore, opts GraphOptions) ([]GraphHit, error) {
	seen := make(map[string]bool)
	for _, id := range opts.Seeds {
		seen[id] = true
	}
	reached := make(map[string]*store.Record)

	frontier := append([]string(nil), opts.Seeds...)
	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			select {
			case <-ctx.Done():
				return nil, amperrors.Cancelled("graph_collect")
			default:
			}
			neighbors, err := st.Neighbors(ctx, id, opts.Direction, opts.RelationTypes)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				if seen[n.Envelope.ID] {
					continue
				}
				seen[n.Envelope.ID] = true
				reached[n.Envelope.ID] = n
				next = append(next, n.Envelope.ID)
			}
		}
		frontier = next
	}

	hits := make([]GraphHit, 0, len(reached))
	for _, rec := range reached {
		hits = append(hits, GraphHit{Record: rec})
	}
	return hits, nil
}

// collectPaths returns every simple path (length 1..opts.Depth) from
// each seed, tracking a per-path visited set so cycles are never
// revisited within a single path (§4.2 "path").
func collectPaths(ctx context.Context, st store.ObjectStore, opts GraphOptions) ([]GraphHit, error) {
	var hits []GraphHit
	for _, seedID := range opts.Seeds {
		seed, err := st.Get(ctx, seedID)
		if err != nil {
			continue
		}
		visited := map[string]bool{seedID: true}
		if err := walkPaths(ctx, st, opts, []*store.Record{seed}, visited, &hits); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func walkPaths(ctx context.Context, st store.ObjectStore, opts GraphOptions, path []*store.Record, visited map[string]bool, hits *[]GraphHit) error {
	select {
	case <-ctx.Done():
		return amperrors.Cancelled("graph_path")
	default:
	}
	if len(path) > 1 {
		*hits = append(*hits, GraphHit{Record: path[len(path)-1], Path: append([]*store.Record(nil), path...)})
	}
	if len(path)-1 >= opts.Depth {
		return nil
	}

	current := path[len(path)-1]
	neighbors, err := st.Neighbors(ctx, current.Envelope.ID, opts.Direction, opts.RelationTypes)
	if err != nil {
		return nil
	}
	for _, n := range neighbors {
		if visited[n.Envelope.ID] {
			continue
		}
		visited[n.Envelope.ID] = true
		extended := make([]*store.Record, len(path)+1)
		copy(extended, path)
		extended[len(path)] = n
		if err := walkPaths(ctx, st, opts, extended, visited, hits); err != nil {
			return err
		}
		delete(visited, n.Envelope.ID)
	}
	return nil
}

// bfsParent records which node first discovered a given node during a
// breadth-first walk, for reconstructing the path afterward.
type bfsParent struct {
	id   string
	node *store.Record
}

// shortestPath runs a multi-source BFS from opts.Seeds and returns the
// single shortest path to opts.Target, or TargetNotReachable if none
// exists within opts.Depth hops (§4.2 "shortest").
func shortestPath(ctx context.Context, st store.ObjectStore, opts GraphOptions) ([]GraphHit, error) {
	parents := make(map[string]bfsParent)
	visited := make(map[string]*store.Record)
	var frontier []string

	for _, id := range opts.Seeds {
		if rec, err := st.Get(ctx, id); err == nil {
			visited[id] = rec
			if id == opts.Target {
				return []GraphHit{{Record: rec, Path: []*store.Record{rec}}}, nil
			}
			frontier = append(frontier, id)
		}
	}

	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			select {
			case <-ctx.Done():
				return nil, amperrors.Cancelled("graph_shortest")
			default:
			}
			neighbors, err := st.Neighbors(ctx, id, opts.Direction, opts.RelationTypes)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				if _, seen := visited[n.Envelope.ID]; seen {
					continue
				}
				visited[n.Envelope.ID] = n
				parents[n.Envelope.ID] = bfsParent{id: id, node: n}
				if n.Envelope.ID == opts.Target {
					return []GraphHit{{Record: n, Path: reconstructPath(parents, visited, n.Envelope.ID)}}, nil
				}
				next = append(next, n.Envelope.ID)
			}
		}
		frontier = next
	}

	return nil, amperrors.TargetNotReachable(opts.Target)
}

func reconstructPath(parents map[string]bfsParent, visited map[string]*store.Record, target string) []*store.Record {
	var reversed []*store.Record
	cur := target
	for {
		reversed = append(reversed, visited[cur])
		p, ok := parents[cur]
		if !ok {
			break
		}
		cur = p.id
	}
	out := make([]*store.Record, len(reversed))
	for i, r := range reversed {
		out[len(reversed)-1-i] = r
	}
	return out
}
