// docs generates, validates, and serves the OpenAPI description of the
// engine's own /v1 API, built straight from the route table rather
// than a checked-in spec file.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/docs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	gen := docs.NewGenerator(cfg)

	switch os.Args[1] {
	case "json":
		printJSON(gen)
	case "yaml":
		printYAML(gen)
	case "validate":
		validate(gen)
	case "serve":
		serve(cfg, gen)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: docs <command>")
	fmt.Println("Commands:")
	fmt.Println("  json     - print the OpenAPI document as JSON")
	fmt.Println("  yaml     - print the OpenAPI document as YAML")
	fmt.Println("  validate - validate the generated document against the OpenAPI 3.0 schema")
	fmt.Println("  serve    - serve /openapi.json and a Swagger UI page")
}

func printJSON(gen *docs.Generator) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(gen.Generate()); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func printYAML(gen *docs.Generator) {
	raw, err := json.Marshal(gen.Generate())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal: %v\n", err)
		os.Exit(1)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yaml: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

func validate(gen *docs.Generator) {
	doc := gen.Generate()
	if err := doc.Validate(openapi3.NewLoader().Context); err != nil {
		fmt.Printf("validation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OpenAPI document is valid")
	fmt.Printf("paths: %d, schemas: %d, tags: %d\n", doc.Paths.Len(), len(doc.Components.Schemas), len(doc.Tags))
}

func serve(cfg *config.Config, gen *docs.Generator) {
	router := mux.NewRouter()
	router.PathPrefix("/").Handler(docs.NewHandler(gen).Router())

	addr := fmt.Sprintf(":%d", cfg.Server.Port+1)
	srv := &http.Server{Addr: addr, Handler: router, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	fmt.Printf("serving API docs at http://localhost%s/docs\n", addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}
