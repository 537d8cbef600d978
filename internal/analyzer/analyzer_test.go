package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan/depscan/pkg/types"
)

func TestNew(t *testing.T) {
	a := New()
	assert.NotNil(t, a)
	assert.NotNil(t, a.fset)
}

func TestAnalyzeFile_ValidGoFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "user.go")

	content := `package testpkg

import (
	"fmt"
	"strings"
)

// User represents a user in the system
type User struct {
	ID   int
	Name string
}

// GetName returns the user's name
func (u *User) GetName() string {
	return strings.TrimSpace(u.Name)
}

// NewUser creates a new user
func NewUser(id int, name string) *User {
	fmt.Println("creating", name)
	return &User{ID: id, Name: name}
}
`

	err := os.WriteFile(testFile, []byte(content), 0644)
	require.NoError(t, err)

	a := New()
	result, err := a.AnalyzeFile(testFile)

	require.NoError(t, err)
	assert.Equal(t, testFile, result.FilePath)
	assert.Equal(t, "testpkg", result.PackageName)
	assert.Equal(t, int64(len(content)), result.SizeBytes)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.Imports, 2)

	importPaths := make(map[string]bool)
	for _, imp := range result.Imports {
		importPaths[imp.Path] = true
	}
	assert.True(t, importPaths["fmt"])
	assert.True(t, importPaths["strings"])

	symbols := make(map[string]types.Symbol)
	for _, sym := range result.Symbols {
		symbols[sym.Name] = sym
	}
	assert.Equal(t, types.KindStruct, symbols["User"].Kind)
	assert.Equal(t, types.KindMethod, symbols["GetName"].Kind)
	assert.Equal(t, "User", symbols["GetName"].Receiver)
	assert.Equal(t, types.KindFunction, symbols["NewUser"].Kind)
	assert.Equal(t, types.KindField, symbols["ID"].Kind)
	assert.Equal(t, "User", symbols["ID"].Receiver)
}

func TestAnalyze_ContentHash(t *testing.T) {
	content := []byte("package p\n")
	digest := sha256.Sum256(content)

	a := New()
	result, err := a.Analyze("p.go", content)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(digest[:]), result.ContentHash)
}

func TestAnalyze_ImportAlias(t *testing.T) {
	content := []byte(`package p

import (
	f "fmt"
	_ "embed"
)
`)

	a := New()
	result, err := a.Analyze("aliased.go", content)
	require.NoError(t, err)
	require.Len(t, result.Imports, 2)

	byPath := make(map[string]types.Import)
	for _, imp := range result.Imports {
		byPath[imp.Path] = imp
	}
	assert.Equal(t, "f", byPath["fmt"].Alias)
	assert.Equal(t, "_", byPath["embed"].Alias)
}

func TestAnalyze_SymbolScopes(t *testing.T) {
	content := []byte(`package p

const Exported = 1
const internal = 2

var PublicVar string
var privateVar string
`)

	a := New()
	result, err := a.Analyze("scopes.go", content)
	require.NoError(t, err)

	scopes := make(map[string]types.SymbolScope)
	kinds := make(map[string]types.SymbolKind)
	for _, sym := range result.Symbols {
		scopes[sym.Name] = sym.Scope
		kinds[sym.Name] = sym.Kind
	}
	assert.Equal(t, types.ScopeExported, scopes["Exported"])
	assert.Equal(t, types.ScopeUnexported, scopes["internal"])
	assert.Equal(t, types.KindConst, kinds["Exported"])
	assert.Equal(t, types.KindVar, kinds["PublicVar"])
	assert.Equal(t, types.ScopeUnexported, scopes["privateVar"])
}

func TestAnalyze_InterfaceAndTypeAlias(t *testing.T) {
	content := []byte(`package p

// Store persists things
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

type Handler func(string) error
`)

	a := New()
	result, err := a.Analyze("iface.go", content)
	require.NoError(t, err)

	symbols := make(map[string]types.Symbol)
	for _, sym := range result.Symbols {
		symbols[sym.Name] = sym
	}
	store := symbols["Store"]
	assert.Equal(t, types.KindInterface, store.Kind)
	assert.Contains(t, store.Signature, "2 methods")
	assert.Equal(t, "Store persists things", store.DocComment)
	assert.Equal(t, types.KindType, symbols["Handler"].Kind)
}

func TestAnalyze_FunctionSignatures(t *testing.T) {
	content := []byte(`package p

func Single(name string) error { return nil }

func Multi(a, b int) (string, error) { return "", nil }

func Variadic(parts ...string) {}
`)

	a := New()
	result, err := a.Analyze("sigs.go", content)
	require.NoError(t, err)

	sigs := make(map[string]string)
	for _, sym := range result.Symbols {
		sigs[sym.Name] = sym.Signature
	}
	assert.Equal(t, "func Single(name string) error", sigs["Single"])
	assert.Equal(t, "func Multi(a int, b int) (string, error)", sigs["Multi"])
	assert.Equal(t, "func Variadic(parts ...string)", sigs["Variadic"])
}

func TestAnalyze_SyntaxErrorIsPartial(t *testing.T) {
	content := []byte(`package broken

import "fmt"

func Valid() {
	fmt.Println("ok")
}

func Invalid( {
`)

	a := New()
	result, err := a.Analyze("broken.go", content)

	// Syntax errors are recorded, not returned
	require.NoError(t, err)
	assert.True(t, result.HasErrors())
	assert.Contains(t, result.Errors[0].Message, "syntax error")
	assert.Equal(t, "broken", result.PackageName)

	// The partial AST still yields the valid declarations
	names := make(map[string]bool)
	for _, sym := range result.Symbols {
		names[sym.Name] = true
	}
	assert.True(t, names["Valid"])
}

func TestAnalyze_Positions(t *testing.T) {
	content := []byte(`package p

func First() {}
`)

	a := New()
	result, err := a.Analyze("pos.go", content)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)

	sym := result.Symbols[0]
	assert.Equal(t, 3, sym.Start.Line)
	assert.Equal(t, 1, sym.Start.Column)
	assert.Equal(t, 3, sym.End.Line)
}

func TestAnalyzeFile_MissingFile(t *testing.T) {
	a := New()
	_, err := a.AnalyzeFile(filepath.Join(t.TempDir(), "nope.go"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestFunc_ProducesJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "main.go")
	require.NoError(t, os.WriteFile(testFile, []byte("package main\n\nfunc main() {}\n"), 0644))

	fn := New().Func()
	payload, err := fn(context.Background(), testFile)
	require.NoError(t, err)

	var analysis types.FileAnalysis
	require.NoError(t, json.Unmarshal(payload, &analysis))
	assert.Equal(t, "main", analysis.PackageName)
	require.Len(t, analysis.Symbols, 1)
	assert.Equal(t, "main", analysis.Symbols[0].Name)
}

func TestFunc_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := New().Func()
	_, err := fn(ctx, "irrelevant.go")
	assert.ErrorIs(t, err, context.Canceled)
}
