// Package docs builds and serves the OpenAPI description of the engine's
// own /v1 HTTP surface, so an agent (or a human) can discover the API
// without reading the router source.
package docs

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/amp-proto/amp/internal/config"
)

// Generator builds an openapi3.T describing the routes NewRouter
// actually mounts. It is kept in lockstep with internal/api/router.go
// by hand rather than by reflection, the same way the route table
// itself is hand-written.
type Generator struct {
	cfg *config.Config
}

// NewGenerator returns a Generator that stamps cfg's server address
// into the document's server list.
func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate returns the full OpenAPI 3.0 document for the engine's
// /v1 API plus the operator-facing /v1/settings admin surface.
func (g *Generator) Generate() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "AMP Engine API",
			Description: "Agentic Memory Protocol object store, query, cache, lease and codebase-index API.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: "http://" + g.addr(), Description: "configured engine instance"},
		},
		Paths:      openapi3.NewPaths(),
		Components: openapi3.Components{Schemas: openapi3.Schemas{}},
		Tags: openapi3.Tags{
			{Name: "objects", Description: "durable object CRUD and provenance"},
			{Name: "relationships", Description: "typed edges between objects"},
			{Name: "query", Description: "hybrid vector/lexical/graph retrieval"},
			{Name: "cache", Description: "ephemeral scoped working-memory blocks"},
			{Name: "leases", Description: "mutual-exclusion locks over object paths"},
			{Name: "codebase", Description: "source file parsing and symbol indexing"},
			{Name: "admin", Description: "operator settings and diagnostics"},
		},
	}

	g.addObjectRoutes(doc)
	g.addRelationshipRoutes(doc)
	g.addQueryRoutes(doc)
	g.addCacheRoutes(doc)
	g.addLeaseRoutes(doc)
	g.addCodebaseRoutes(doc)
	g.addAdminRoutes(doc)

	return doc
}

func (g *Generator) addr() string {
	if g.cfg == nil {
		return "localhost:8080"
	}
	host := g.cfg.Server.BindAddress
	if host == "" {
		host = "localhost"
	}
	return host + ":" + itoa(g.cfg.Server.Port)
}

func (g *Generator) addObjectRoutes(doc *openapi3.T) {
	idParam := pathParam("id", "object id")

	doc.Paths.Set("/v1/objects", &openapi3.PathItem{
		Post: op("objects", "createObject", "Create an object", jsonBody(),
			code("201", "created"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/objects/batch", &openapi3.PathItem{
		Post: op("objects", "createObjectBatch", "Create a batch of objects", jsonBody(),
			code("207", "per-item results"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/objects/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Get: op("objects", "getObject", "Fetch an object by id", nil,
			code("200", "ok"), code("404", "not found")),
		Put: op("objects", "updateObject", "Update an object by merge-patching the stored copy", jsonBody(),
			code("200", "ok"), code("404", "not found")),
		Delete: op("objects", "deleteObject", "Delete an object", nil,
			code("204", "deleted"), code("404", "not found")),
	})
	doc.Paths.Set("/v1/objects/{id}/provenance", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Get: op("objects", "getObjectProvenance", "Fetch an object's write history", nil,
			code("200", "ok"), code("404", "not found")),
	})
}

func (g *Generator) addRelationshipRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/relationships", &openapi3.PathItem{
		Post: op("relationships", "createRelationship", "Create a typed edge between two objects", jsonBody(),
			code("201", "created"), code("400", "bad request")),
		Get: op("relationships", "listRelationships", "List the outbound edges of the object named by source_id", nil,
			code("200", "ok")),
	})
}

func (g *Generator) addQueryRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/query", &openapi3.PathItem{
		Post: op("query", "query", "Run a hybrid vector/lexical/graph query over the store", jsonBody(),
			code("200", "ok"), code("400", "bad request")),
	})
}

func (g *Generator) addCacheRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/cache/block/write", &openapi3.PathItem{
		Post: op("cache", "cacheWrite", "Append to the active scoped cache block", jsonBody(),
			code("201", "created"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/cache/block/compact", &openapi3.PathItem{
		Post: op("cache", "cacheCompact", "Close and summarize the active block, then open a fresh one", jsonBody(),
			code("204", "compacted")),
	})
	doc.Paths.Set("/v1/cache/block/read", &openapi3.PathItem{
		Post: op("cache", "cacheRead", "Read cache blocks for a scope", jsonBody(),
			code("200", "ok")),
	})
	doc.Paths.Set("/v1/cache/block/list", &openapi3.PathItem{
		Get: op("cache", "cacheList", "List cache blocks", nil, code("200", "ok")),
	})
	doc.Paths.Set("/v1/cache/block/current/{scope}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParam("scope", "cache scope key")},
		Get: op("cache", "cacheCurrent", "Fetch the currently open block for a scope (null data when there is none)", nil,
			code("200", "ok")),
	})
}

func (g *Generator) addLeaseRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/leases/acquire", &openapi3.PathItem{
		Post: op("leases", "leaseAcquire", "Acquire a lease over an object path", jsonBody(),
			code("201", "created"), code("409", "conflict")),
	})
	doc.Paths.Set("/v1/leases/renew", &openapi3.PathItem{
		Post: op("leases", "leaseRenew", "Extend an owned lease's TTL", jsonBody(),
			code("200", "ok"), code("404", "not found or expired")),
	})
	doc.Paths.Set("/v1/leases/release", &openapi3.PathItem{
		Post: op("leases", "leaseRelease", "Release a lease (idempotent)", jsonBody(),
			code("204", "released")),
	})
}

func (g *Generator) addCodebaseRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/codebase/parse-file", &openapi3.PathItem{
		Post: op("codebase", "parseFile", "Parse a source file into symbols and chunks", jsonBody(),
			code("200", "ok"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/codebase/update-file-log", &openapi3.PathItem{
		Post: op("codebase", "updateFileLog", "Append an entry to a file's index log", jsonBody(),
			code("200", "ok")),
	})
	doc.Paths.Set("/v1/codebase/file-logs/{path}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParam("path", "repo-relative source path")},
		Get: op("codebase", "getFileLog", "Fetch a file's index log", nil,
			code("200", "ok"), code("404", "not found")),
	})
	doc.Paths.Set("/v1/codebase/delete", &openapi3.PathItem{
		Post: op("codebase", "deleteFileIndex", "Delete a file's symbols and chunks and record a delete entry in its file log", jsonBody(),
			code("204", "deleted")),
	})
}

func (g *Generator) addAdminRoutes(doc *openapi3.T) {
	doc.Paths.Set("/v1/settings", &openapi3.PathItem{
		Get: op("admin", "getSettings", "Fetch the running configuration snapshot", nil, code("200", "ok")),
		Put: op("admin", "putSettings", "Apply a settings update to the running configuration", jsonBody(),
			code("200", "ok"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/settings/nuclear-delete", &openapi3.PathItem{
		Post: op("admin", "nuclearDelete", "Delete every object and relationship, or report counts with dry_run", jsonBody(),
			code("200", "ok"), code("400", "bad request")),
	})
	doc.Paths.Set("/v1/settings/sweep-leases", &openapi3.PathItem{
		Post: op("admin", "sweepLeases", "Remove expired leases", nil, code("200", "ok")),
	})
}

type codedResponse struct {
	code string
	ref  *openapi3.ResponseRef
}

func code(statusCode, description string) codedResponse {
	desc := description
	return codedResponse{code: statusCode, ref: &openapi3.ResponseRef{Value: &openapi3.Response{Description: &desc}}}
}

func op(tag, id, summary string, body *openapi3.RequestBodyRef, responses ...codedResponse) *openapi3.Operation {
	o := &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Tags:        []string{tag},
		Responses:   openapi3.NewResponses(),
	}
	if body != nil {
		o.RequestBody = body
	}
	for _, r := range responses {
		o.Responses.Set(r.code, r.ref)
	}
	return o
}

func jsonBody() *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
				},
			},
		},
	}
}

func pathParam(name, desc string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          "path",
			Description: desc,
			Required:    true,
			Schema:      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
