// Package lockcheck reports blocking operations performed while a sync mutex
// is held.
//
// A lock is held from a Lock or RLock call until the matching Unlock in the
// same statement list, or until the end of the function when the unlock is
// deferred. Nested blocks inherit the held set but their unlocks do not leak
// back out, which matches the common "unlock and return early" shape.
//
// Flagged while a lock is held:
//   - channel sends, receives and range over a channel
//   - select statements without a default clause
//   - time.Sleep
//   - calls whose first argument is a context.Context, except calls into
//     package context itself
//
// Function literals are checked as separate functions.
package lockcheck

import (
	"go/ast"
	"go/token"
	"go/types"
	"sort"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const doc = `report blocking operations while a sync.Mutex or sync.RWMutex is held

Channel operations, select without default, time.Sleep and context-taking
calls must not run between Lock and Unlock.`

// Analyzer is the lock discipline check.
var Analyzer = &analysis.Analyzer{
	Name:     "lockcheck",
	Doc:      doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	ins := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	filter := []ast.Node{(*ast.FuncDecl)(nil), (*ast.FuncLit)(nil)}
	ins.Preorder(filter, func(n ast.Node) {
		c := &checker{pass: pass}
		switch fn := n.(type) {
		case *ast.FuncDecl:
			if fn.Body != nil {
				c.block(fn.Body.List, lockSet{})
			}
		case *ast.FuncLit:
			c.block(fn.Body.List, lockSet{})
		}
	})
	return nil, nil
}

// lockSet maps the printed mutex expression to held.
type lockSet map[string]bool

func (s lockSet) clone() lockSet {
	c := make(lockSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// first returns a stable name for messages.
func (s lockSet) first() string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names[0]
}

type checker struct {
	pass *analysis.Pass
}

func (c *checker) block(stmts []ast.Stmt, held lockSet) lockSet {
	for _, s := range stmts {
		c.stmt(s, held)
	}
	return held
}

func (c *checker) stmt(s ast.Stmt, held lockSet) {
	switch s := s.(type) {
	case nil:
	case *ast.ExprStmt:
		if call, ok := s.X.(*ast.CallExpr); ok {
			if name, op := c.lockOp(call); op != opNone {
				if op == opLock {
					held[name] = true
				} else {
					delete(held, name)
				}
				return
			}
		}
		c.expr(s.X, held)
	case *ast.DeferStmt:
		// Deferred calls run at return; a deferred unlock keeps the lock
		// held for the rest of the body.
	case *ast.GoStmt:
		for _, arg := range s.Call.Args {
			c.expr(arg, held)
		}
	case *ast.SendStmt:
		if len(held) > 0 {
			c.pass.Reportf(s.Arrow, "channel send while %s is locked", held.first())
		}
		c.expr(s.Chan, held)
		c.expr(s.Value, held)
	case *ast.AssignStmt:
		for _, e := range s.Rhs {
			c.expr(e, held)
		}
	case *ast.DeclStmt:
		c.expr(s.Decl, held)
	case *ast.ReturnStmt:
		for _, e := range s.Results {
			c.expr(e, held)
		}
	case *ast.IncDecStmt:
		c.expr(s.X, held)
	case *ast.LabeledStmt:
		c.stmt(s.Stmt, held)
	case *ast.BlockStmt:
		c.block(s.List, held.clone())
	case *ast.IfStmt:
		inner := held.clone()
		c.stmt(s.Init, inner)
		c.expr(s.Cond, inner)
		c.block(s.Body.List, inner.clone())
		c.stmt(s.Else, inner.clone())
	case *ast.ForStmt:
		inner := held.clone()
		c.stmt(s.Init, inner)
		c.expr(s.Cond, inner)
		c.stmt(s.Post, inner)
		c.block(s.Body.List, inner)
	case *ast.RangeStmt:
		if len(held) > 0 && c.isChan(s.X) {
			c.pass.Reportf(s.For, "range over channel while %s is locked", held.first())
		}
		c.expr(s.X, held)
		c.block(s.Body.List, held.clone())
	case *ast.SwitchStmt:
		inner := held.clone()
		c.stmt(s.Init, inner)
		c.expr(s.Tag, inner)
		c.clauses(s.Body, inner)
	case *ast.TypeSwitchStmt:
		inner := held.clone()
		c.stmt(s.Init, inner)
		c.stmt(s.Assign, inner)
		c.clauses(s.Body, inner)
	case *ast.SelectStmt:
		if len(held) > 0 && !hasDefault(s) {
			c.pass.Reportf(s.Select, "select while %s is locked", held.first())
		}
		for _, cl := range s.Body.List {
			if cc, ok := cl.(*ast.CommClause); ok {
				c.block(cc.Body, held.clone())
			}
		}
	}
}

func (c *checker) clauses(body *ast.BlockStmt, held lockSet) {
	for _, cl := range body.List {
		if cc, ok := cl.(*ast.CaseClause); ok {
			for _, e := range cc.List {
				c.expr(e, held)
			}
			c.block(cc.Body, held.clone())
		}
	}
}

// expr reports blocking operations inside n without entering function
// literals.
func (c *checker) expr(n ast.Node, held lockSet) {
	if n == nil || len(held) == 0 {
		return
	}
	ast.Inspect(n, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.UnaryExpr:
			if n.Op == token.ARROW {
				c.pass.Reportf(n.OpPos, "channel receive while %s is locked", held.first())
			}
		case *ast.CallExpr:
			c.call(n, held)
		}
		return true
	})
}

func (c *checker) call(call *ast.CallExpr, held lockSet) {
	fn, _ := typeutil.Callee(c.pass.TypesInfo, call).(*types.Func)
	if fn != nil && fn.Pkg() != nil {
		switch {
		case fn.Pkg().Path() == "time" && fn.Name() == "Sleep":
			c.pass.Reportf(call.Lparen, "time.Sleep while %s is locked", held.first())
			return
		case fn.Pkg().Path() == "context":
			return
		}
	}
	if len(call.Args) == 0 {
		return
	}
	if isContext(c.pass.TypesInfo.TypeOf(call.Args[0])) {
		c.pass.Reportf(call.Lparen, "context-taking call while %s is locked", held.first())
	}
}

type lockOpKind int

const (
	opNone lockOpKind = iota
	opLock
	opUnlock
)

// lockOp recognises Lock/RLock/Unlock/RUnlock on a sync mutex, including
// promoted methods of embedded mutexes.
func (c *checker) lockOp(call *ast.CallExpr) (string, lockOpKind) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return "", opNone
	}
	fn, ok := c.pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != "sync" {
		return "", opNone
	}
	name := types.ExprString(sel.X)
	switch fn.Name() {
	case "Lock", "RLock":
		return name, opLock
	case "Unlock", "RUnlock":
		return name, opUnlock
	}
	return "", opNone
}

func (c *checker) isChan(e ast.Expr) bool {
	t := c.pass.TypesInfo.TypeOf(e)
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*types.Chan)
	return ok
}

func isContext(t types.Type) bool {
	if t == nil {
		return false
	}
	named, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

func hasDefault(s *ast.SelectStmt) bool {
	for _, cl := range s.Body.List {
		if cc, ok := cl.(*ast.CommClause); ok && cc.Comm == nil {
			return true
		}
	}
	return false
}
