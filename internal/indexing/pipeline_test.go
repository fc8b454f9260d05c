package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

type fakeSymbolParser struct{}

func (fakeSymbolParser) Supports(language string) bool { return language == "go" }

func (fakeSymbolParser) Parse(ctx context.Context, content []byte, language string) ([]ParsedSymbol, error) {
	return []ParsedSymbol{
		{Name: "DoThing", Kind: "function", StartLine: 3, EndLine: 5, Signature: "DoThing()"},
		{Name: "helperVar", Kind: "variable", StartLine: 1, EndLine: 1},
	}, nil
}

func newTestPipeline() (*Pipeline, store.ObjectStore) {
	st := store.NewMemoryStore(nil)
	p := NewPipeline(st, nil, fakeSymbolParser{})
	return p, st
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexFileCreatesSymbolsChunksAndFileLog(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {\n\tprintln(\"hi\")\n}\n")

	p, st := newTestPipeline()
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}

	_, errs, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, errs)

	symbols, err := st.List(context.Background(), store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	assert.Len(t, symbols, 3) // file node + function + variable

	chunks, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileChunk, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	logs, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileLog, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	fl := logs[0].Variant.(*objects.FileLog)
	assert.Equal(t, 1, fl.ChangeCount)
	assert.Contains(t, fl.KeySymbols, "DoThing")
}

func TestIndexFileSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {}\n")

	p, st := newTestPipeline()
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}

	require.NoError(t, p.IndexFile(context.Background(), cfg, path))
	require.NoError(t, p.IndexFile(context.Background(), cfg, path))

	logs, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileLog, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	fl := logs[0].Variant.(*objects.FileLog)
	assert.Equal(t, 1, fl.ChangeCount, "unchanged content must not append a second audit entry")
}

func TestIndexFileReEditAppendsAuditEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {}\n")

	p, st := newTestPipeline()
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}

	require.NoError(t, p.IndexFile(context.Background(), cfg, path))
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc DoThing() {\n\t// changed\n}\n"), 0o644))
	require.NoError(t, p.IndexFile(context.Background(), cfg, path))

	logs, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileLog, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	fl := logs[0].Variant.(*objects.FileLog)
	assert.Equal(t, 2, fl.ChangeCount)
	assert.Equal(t, len(fl.AuditTrail), fl.ChangeCount)
}

func TestDeleteFileCascadesAndSoftDeletesLog(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {}\n")

	p, st := newTestPipeline()
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}
	require.NoError(t, p.IndexFile(context.Background(), cfg, path))

	require.NoError(t, p.DeleteFile(context.Background(), cfg, "main.go"))

	symbols, err := st.List(context.Background(), store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	assert.Empty(t, symbols)

	chunks, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileChunk, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	logs, err := st.List(context.Background(), store.Filter{Type: objects.TypeFileLog, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	fl := logs[0].Variant.(*objects.FileLog)
	assert.Equal(t, objects.AuditActionDelete, fl.AuditTrail[len(fl.AuditTrail)-1].Action)
	assert.Nil(t, fl.Embedding)
}

func TestLanguageForPathSkipsUnknownExtensions(t *testing.T) {
	assert.Equal(t, "go", LanguageForPath("foo.go"))
	assert.Equal(t, "", LanguageForPath("foo.bin"))
}

func symbolNamed(records []*store.Record, name string) *objects.Symbol {
	for _, r := range records {
		if s, ok := r.Variant.(*objects.Symbol); ok && s.Name == name {
			return s
		}
	}
	return nil
}

func TestIndexFileWiresProjectDirectoryContainsChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755))
	writeTempFile(t, filepath.Join(dir, "pkg", "sub"), "main.go", "package sub\n\nfunc DoThing() {}\n")

	p, st := newTestPipeline()
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}
	_, errs, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, errs)

	ctx := context.Background()
	projectNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: ""}, 0)
	require.NoError(t, err)
	project := symbolNamed(projectNodes, "p1")
	require.NotNil(t, project, "expected a project-kind container node")
	assert.Equal(t, string(objects.SymbolKindProject), project.Kind)

	pkgNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "pkg"}, 0)
	require.NoError(t, err)
	pkgDir := symbolNamed(pkgNodes, "pkg")
	require.NotNil(t, pkgDir)

	subNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "pkg/sub"}, 0)
	require.NoError(t, err)
	subDir := symbolNamed(subNodes, "sub")
	require.NotNil(t, subDir)

	fileNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "pkg/sub/main.go"}, 0)
	require.NoError(t, err)
	fileNode := symbolNamed(fileNodes, "main.go")
	require.NotNil(t, fileNode)

	projectOut, err := st.Neighbors(ctx, project.ID, objects.DirectionOutbound, []objects.RelationType{objects.RelContains})
	require.NoError(t, err)
	require.Len(t, projectOut, 1)
	assert.Equal(t, pkgDir.ID, projectOut[0].Envelope.ID)

	pkgOut, err := st.Neighbors(ctx, pkgDir.ID, objects.DirectionOutbound, []objects.RelationType{objects.RelContains})
	require.NoError(t, err)
	require.Len(t, pkgOut, 1)
	assert.Equal(t, subDir.ID, pkgOut[0].Envelope.ID)

	subOut, err := st.Neighbors(ctx, subDir.ID, objects.DirectionOutbound, []objects.RelationType{objects.RelContains})
	require.NoError(t, err)
	require.Len(t, subOut, 1)
	assert.Equal(t, fileNode.ID, subOut[0].Envelope.ID)
}

type importingSymbolParser struct{ imports []string }

func (p importingSymbolParser) Supports(language string) bool { return language == "go" }

func (p importingSymbolParser) Parse(ctx context.Context, content []byte, language string) ([]ParsedSymbol, error) {
	out := make([]ParsedSymbol, 0, len(p.imports)+1)
	for _, imp := range p.imports {
		out = append(out, ParsedSymbol{Name: imp, Kind: "import"})
	}
	out = append(out, ParsedSymbol{Name: "DoThing", Kind: "function"})
	return out, nil
}

func TestIndexFileRecordsDependsOnForResolvedImport(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "util.go", "package main\n\nfunc Helper() {}\n")
	writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {}\n")

	st := store.NewMemoryStore(nil)
	p := NewPipeline(st, nil, importingSymbolParser{imports: []string{"./util"}})
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}

	// The walk visits main.go before util.go, and an import only resolves
	// to a file already indexed, so util.go is indexed first.
	require.NoError(t, p.IndexFile(context.Background(), cfg, filepath.Join(dir, "util.go")))
	_, errs, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, errs)

	ctx := context.Background()
	mainNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	mainFile := symbolNamed(mainNodes, "main.go")
	require.NotNil(t, mainFile)

	deps, err := st.Neighbors(ctx, mainFile.ID, objects.DirectionOutbound, []objects.RelationType{objects.RelDependsOn})
	require.NoError(t, err)
	require.Len(t, deps, 1)
	depSym, ok := deps[0].Variant.(*objects.Symbol)
	require.True(t, ok)
	assert.Equal(t, "util.go", depSym.Path)
}

func TestIndexFileSkipsDependsOnForUnresolvedImport(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "main.go", "package main\n\nfunc DoThing() {}\n")

	st := store.NewMemoryStore(nil)
	p := NewPipeline(st, nil, importingSymbolParser{imports: []string{"some/external/package"}})
	cfg := Config{RootPath: dir, TenantID: "t1", ProjectID: "p1", Agent: "tester", Workers: 1}

	_, errs, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, errs)

	ctx := context.Background()
	mainNodes, err := st.List(ctx, store.Filter{Type: objects.TypeSymbol, ProjectID: "p1", TenantID: "t1", Path: "main.go"}, 0)
	require.NoError(t, err)
	mainFile := symbolNamed(mainNodes, "main.go")
	require.NotNil(t, mainFile)

	deps, err := st.Neighbors(ctx, mainFile.ID, objects.DirectionOutbound, []objects.RelationType{objects.RelDependsOn})
	require.NoError(t, err)
	assert.Empty(t, deps, "an import with no matching indexed file must not produce a depends_on edge")
}
