package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"

	"github.com/depscan/depscan/pkg/types"
)

// Analyzer extracts imports, exports, and symbols from Go source files
type Analyzer struct {
	fset *token.FileSet
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{fset: token.NewFileSet()}
}

// AnalyzeFile analyzes one Go source file. Syntax errors are non-fatal:
// the analysis records them and carries whatever symbols the partial AST
// yields.
func (a *Analyzer) AnalyzeFile(filePath string) (*types.FileAnalysis, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return a.Analyze(filePath, content)
}

// Analyze analyzes Go source held in memory
func (a *Analyzer) Analyze(filePath string, content []byte) (*types.FileAnalysis, error) {
	digest := sha256.Sum256(content)
	result := &types.FileAnalysis{
		FilePath:    filePath,
		ContentHash: hex.EncodeToString(digest[:]),
		SizeBytes:   int64(len(content)),
	}

	file, err := parser.ParseFile(a.fset, filePath, content, parser.ParseComments)
	if err != nil {
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
		// parser.ParseFile may return a partial AST even on error
	}
	if file == nil {
		return result, nil
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}
	result.Imports = a.extractImports(file)

	walker := &symbolWalker{
		fset:        a.fset,
		packageName: result.PackageName,
	}
	ast.Inspect(file, walker.visit)
	result.Symbols = walker.symbols

	return result, nil
}

// Func adapts the analyzer into the engine's per-item function shape,
// producing JSON-serialized analyses
func (a *Analyzer) Func() func(ctx context.Context, itemID string) ([]byte, error) {
	return func(ctx context.Context, itemID string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		analysis, err := a.AnalyzeFile(itemID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(analysis)
	}
}

func (a *Analyzer) extractImports(file *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(file.Imports))
	for _, imp := range file.Imports {
		spec := types.Import{Path: strings.Trim(imp.Path.Value, `"`)}
		if imp.Name != nil {
			spec.Alias = imp.Name.Name
		}
		imports = append(imports, spec)
	}
	return imports
}

// symbolWalker collects symbols during AST traversal
type symbolWalker struct {
	fset        *token.FileSet
	packageName string
	symbols     []types.Symbol
}

func (w *symbolWalker) visit(node ast.Node) bool {
	if node == nil {
		return false
	}
	switch n := node.(type) {
	case *ast.FuncDecl:
		w.addFunction(n)
	case *ast.GenDecl:
		w.addGenDecl(n)
	}
	return true
}

func (w *symbolWalker) addFunction(decl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:       decl.Name.Name,
		Kind:       types.KindFunction,
		Package:    w.packageName,
		DocComment: docText(decl.Doc),
		Scope:      scopeOf(decl.Name.Name),
		Start:      w.position(decl.Pos()),
		End:        w.position(decl.End()),
	}
	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverName(decl.Recv.List[0].Type)
	}
	sym.Signature = w.functionSignature(decl)
	w.symbols = append(w.symbols, sym)
}

func (w *symbolWalker) addGenDecl(decl *ast.GenDecl) {
	for _, spec := range decl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			w.addTypeSpec(s, decl.Doc)
		case *ast.ValueSpec:
			w.addValueSpec(s, decl.Doc, decl.Tok)
		}
	}
}

func (w *symbolWalker) addTypeSpec(spec *ast.TypeSpec, doc *ast.CommentGroup) {
	sym := types.Symbol{
		Name:       spec.Name.Name,
		Package:    w.packageName,
		DocComment: docText(doc),
		Scope:      scopeOf(spec.Name.Name),
		Start:      w.position(spec.Pos()),
		End:        w.position(spec.End()),
	}

	switch t := spec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct { ... } // %d fields", spec.Name.Name, fieldCount(t.Fields))
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface { ... } // %d methods", spec.Name.Name, fieldCount(t.Methods))
	default:
		sym.Kind = types.KindType
		sym.Signature = fmt.Sprintf("type %s", spec.Name.Name)
	}
	w.symbols = append(w.symbols, sym)

	if structType, ok := spec.Type.(*ast.StructType); ok {
		w.addStructFields(spec.Name.Name, structType)
	}
}

func (w *symbolWalker) addStructFields(structName string, structType *ast.StructType) {
	if structType.Fields == nil {
		return
	}
	for _, field := range structType.Fields.List {
		for _, name := range field.Names {
			w.symbols = append(w.symbols, types.Symbol{
				Name:      name.Name,
				Kind:      types.KindField,
				Package:   w.packageName,
				Receiver:  structName,
				Scope:     scopeOf(name.Name),
				Start:     w.position(field.Pos()),
				End:       w.position(field.End()),
				Signature: fmt.Sprintf("%s %s", name.Name, exprString(field.Type)),
			})
		}
	}
}

func (w *symbolWalker) addValueSpec(spec *ast.ValueSpec, doc *ast.CommentGroup, tok token.Token) {
	kind := types.KindVar
	if tok == token.CONST {
		kind = types.KindConst
	}

	for _, name := range spec.Names {
		sym := types.Symbol{
			Name:       name.Name,
			Kind:       kind,
			Package:    w.packageName,
			DocComment: docText(doc),
			Scope:      scopeOf(name.Name),
			Start:      w.position(spec.Pos()),
			End:        w.position(spec.End()),
		}
		switch {
		case spec.Type != nil:
			sym.Signature = fmt.Sprintf("%s %s", name.Name, exprString(spec.Type))
		case len(spec.Values) > 0:
			sym.Signature = fmt.Sprintf("%s = ...", name.Name)
		default:
			sym.Signature = name.Name
		}
		w.symbols = append(w.symbols, sym)
	}
}

func (w *symbolWalker) functionSignature(decl *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")

	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(decl.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(decl.Name.Name)

	sig.WriteString("(")
	if decl.Type.Params != nil {
		sig.WriteString(fieldListString(decl.Type.Params))
	}
	sig.WriteString(")")

	if decl.Type.Results != nil {
		results := fieldListString(decl.Type.Results)
		if results != "" {
			if decl.Type.Results.NumFields() > 1 {
				sig.WriteString(" (" + results + ")")
			} else {
				sig.WriteString(" " + results)
			}
		}
	}
	return sig.String()
}

func (w *symbolWalker) position(pos token.Pos) types.Position {
	p := w.fset.Position(pos)
	return types.Position{Line: p.Line, Column: p.Column}
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return ident.Name
		}
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func fieldCount(fields *ast.FieldList) int {
	if fields == nil {
		return 0
	}
	return fields.NumFields()
}

func fieldListString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func scopeOf(name string) types.SymbolScope {
	if token.IsExported(name) {
		return types.ScopeExported
	}
	return types.ScopeUnexported
}
