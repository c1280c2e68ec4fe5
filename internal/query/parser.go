package query

import (
	"strconv"
)

// Parsing happens in two passes: an operator-precedence pass builds an
// untyped expression tree over the token stream, then a shape pass converts
// the tree into the typed AST for the requested result kind. One grammar
// serves all three top-level productions; the shape pass decides which
// operators are legal where.

// exprNode is the untyped operator-precedence parse tree. op is a binary
// operator, the pseudo-op "~u" for the unary invert prefix, or empty for a
// leaf token.
type exprNode struct {
	op   string
	text string
	lhs  *exprNode
	rhs  *exprNode
}

func (e *exprNode) leaf() bool { return e.op == "" }

// fragment re-serializes the subtree for error messages.
func (e *exprNode) fragment() string {
	switch {
	case e == nil:
		return ""
	case e.leaf():
		return escapeToken(e.text)
	case e.op == "~u":
		return "~ " + e.lhs.fragment()
	default:
		return e.lhs.fragment() + " " + e.op + " " + e.rhs.fragment()
	}
}

type parser struct {
	text   string
	tokens []token
	pos    int
}

func (p *parser) peek() *token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *parser) next() *token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr(minPrec int) (*exprNode, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil || !t.op {
			return lhs, nil
		}
		prec := opPrecedence[t.text]
		if prec < minPrec {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = &exprNode{op: t.text, lhs: lhs, rhs: rhs}
	}
}

func (p *parser) parsePrimary() (*exprNode, error) {
	t := p.next()
	if t == nil {
		return nil, syntaxError(p.text, "", "expected a name")
	}
	if !t.op {
		return &exprNode{text: t.text}, nil
	}
	if t.text == "~" {
		operand, err := p.parseExpr(precChain)
		if err != nil {
			return nil, err
		}
		return &exprNode{op: "~u", lhs: operand}, nil
	}
	return nil, syntaxError(p.text, t.text, "expected a name")
}

// parseTree normalizes, scans, and builds the full expression tree,
// requiring every token to be consumed.
func parseTree(raw string) (*parser, *exprNode, error) {
	text := normalize(raw)
	if text == "" {
		return nil, nil, ErrEmptyQuery
	}
	tokens, err := scan(text)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{text: text, tokens: tokens}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, nil, err
	}
	if t := p.peek(); t != nil {
		return nil, nil, syntaxError(text, t.text, "expected lookup operator")
	}
	return p, root, nil
}

// splitOps peels the trailing element-wise and reduction operations off the
// tree, returning the lookup source and the operations in application
// order.
func splitOps(root *exprNode) (*exprNode, []*exprNode) {
	if root.op == "%" || root.op == "%>" {
		src, ops := splitOps(root.lhs)
		return src, append(ops, root)
	}
	return root, nil
}

func (p *parser) operationFromNode(node *exprNode) (Operation, error) {
	reduce := node.op == "%>"

	// Peel parameters off the left spine: the first separator must be ";"
	// and the rest ",".
	type sepParam struct {
		sep  string
		node *exprNode
	}
	var params []sepParam
	cur := node.rhs
	for cur.op == "," || cur.op == ";" {
		params = append([]sepParam{{cur.op, cur.rhs}}, params...)
		cur = cur.lhs
	}
	if !cur.leaf() {
		return Operation{}, syntaxError(p.text, cur.fragment(), "expected operation name")
	}
	name := cur.text

	spec, ok := operations[name]
	if !ok || spec.Reduce != reduce {
		kind := "element-wise"
		if reduce {
			kind = "reduction"
		}
		return Operation{}, &ParseError{
			Query:    p.text,
			Token:    escapeToken(name),
			Expected: "a known " + kind + " operation",
			Err:      ErrUnknownOperation,
		}
	}

	resolved := make(map[string]float64, len(spec.params))
	for _, ps := range spec.params {
		resolved[ps.name] = ps.dflt
	}
	seen := make(map[string]bool)
	for i, sp := range params {
		want := ","
		if i == 0 {
			want = ";"
		}
		if sp.sep != want {
			return Operation{}, syntaxError(p.text, sp.node.fragment(), "expected "+strconv.Quote(want)+" before operation parameter")
		}
		pn := sp.node
		if pn.op != "=" || !pn.lhs.leaf() || !pn.rhs.leaf() {
			return Operation{}, syntaxError(p.text, pn.fragment(), "expected parameter assignment")
		}
		pname := pn.lhs.text
		if !spec.hasParam(pname) {
			return Operation{}, &ParseError{
				Query:    p.text,
				Token:    escapeToken(pname),
				Expected: "a parameter of " + name,
				Err:      ErrInvalidParameter,
			}
		}
		if seen[pname] {
			return Operation{}, &ParseError{
				Query:    p.text,
				Token:    escapeToken(pname),
				Expected: "each parameter at most once",
				Err:      ErrInvalidParameter,
			}
		}
		seen[pname] = true
		value, err := strconv.ParseFloat(pn.rhs.text, 64)
		if err != nil {
			return Operation{}, &ParseError{
				Query:    p.text,
				Token:    escapeToken(pn.rhs.text),
				Expected: "a numeric value for parameter " + pname,
				Err:      ErrInvalidParameter,
			}
		}
		resolved[pname] = value
	}
	return Operation{Name: name, Reduce: reduce, Params: resolved}, nil
}

func (p *parser) propertyLookupFromNode(node *exprNode) (PropertyLookup, error) {
	var names []string
	tolerant := false
	cur := node
	for cur.op == ":" || cur.op == "?:" {
		if cur.op == "?:" {
			tolerant = true
		}
		if !cur.rhs.leaf() {
			return PropertyLookup{}, syntaxError(p.text, cur.rhs.fragment(), "expected a property name")
		}
		names = append([]string{cur.rhs.text}, names...)
		cur = cur.lhs
	}
	if !cur.leaf() {
		return PropertyLookup{}, syntaxError(p.text, cur.fragment(), "expected a property name")
	}
	names = append([]string{cur.text}, names...)
	return PropertyLookup{Names: names, Tolerant: tolerant}, nil
}

func (p *parser) axisLookupFromNode(node *exprNode) (AxisLookup, error) {
	if node.op == "~u" {
		prop, err := p.propertyLookupFromNode(node.lhs)
		if err != nil {
			return AxisLookup{}, err
		}
		return AxisLookup{Invert: true, Property: prop}, nil
	}
	if op, ok := cmpOps[node.op]; ok {
		if node.lhs.op == "~u" {
			return AxisLookup{}, syntaxError(p.text, node.fragment(), "inverted lookup cannot be compared")
		}
		prop, err := p.propertyLookupFromNode(node.lhs)
		if err != nil {
			return AxisLookup{}, err
		}
		if !node.rhs.leaf() {
			return AxisLookup{}, syntaxError(p.text, node.rhs.fragment(), "expected a literal")
		}
		return AxisLookup{Property: prop, Cmp: &PropertyComparison{Op: op, Literal: node.rhs.text}}, nil
	}
	prop, err := p.propertyLookupFromNode(node)
	if err != nil {
		return AxisLookup{}, err
	}
	return AxisLookup{Property: prop}, nil
}

func (p *parser) filteredAxisFromNode(node *exprNode) (FilteredAxis, error) {
	type combLookup struct {
		comb Combinator
		node *exprNode
	}
	var raw []combLookup
	cur := node
spine:
	for {
		var comb Combinator
		switch cur.op {
		case "&":
			comb = CombAnd
		case "|":
			comb = CombOr
		case "^":
			comb = CombXor
		default:
			break spine
		}
		raw = append([]combLookup{{comb, cur.rhs}}, raw...)
		cur = cur.lhs
	}
	if !cur.leaf() {
		return FilteredAxis{}, syntaxError(p.text, cur.fragment(), "expected an axis name")
	}
	fa := FilteredAxis{Axis: cur.text}
	for _, cl := range raw {
		lookup, err := p.axisLookupFromNode(cl.node)
		if err != nil {
			return FilteredAxis{}, err
		}
		fa.Filters = append(fa.Filters, AxisFilter{Comb: cl.comb, Lookup: lookup})
	}
	return fa, nil
}

// entrySelection recognizes the "axis = entry" form that fixes an axis to a
// single entry. The left side must be a bare axis name, which is what
// distinguishes a selection from a comparison filter.
func entrySelection(node *exprNode) (axis, entry string, ok bool) {
	if node.op != "=" || !node.lhs.leaf() || !node.rhs.leaf() {
		return "", "", false
	}
	return node.lhs.text, node.rhs.text, true
}

// source is the classified lookup at the head of a query, before any
// operations are applied. arity is the number of result dimensions.
type source struct {
	arity  int
	matrix *MatrixLookup
	vector VectorSource
	scalar ScalarSource
}

func (p *parser) classifySource(node *exprNode) (source, error) {
	if node.leaf() {
		return source{arity: 0, scalar: &ScalarLookup{Name: node.text}}, nil
	}
	if node.op != "@" {
		return source{}, syntaxError(p.text, node.fragment(), "expected lookup operator")
	}
	axes, prop := node.lhs, node.rhs

	if axes.op == "," || axes.op == ";" {
		name, err := p.singleName(prop, "expected a matrix name")
		if err != nil {
			return source{}, err
		}
		lAxis, lEntry, lSel := entrySelection(axes.lhs)
		rAxis, rEntry, rSel := entrySelection(axes.rhs)
		switch {
		case lSel && rSel:
			return source{arity: 0, scalar: &MatrixEntryLookup{
				RowAxis: lAxis, RowEntry: lEntry,
				ColAxis: rAxis, ColEntry: rEntry,
				Name: name,
			}}, nil
		case lSel:
			other, err := p.filteredAxisFromNode(axes.rhs)
			if err != nil {
				return source{}, err
			}
			return source{arity: 1, vector: &MatrixSliceLookup{
				SliceAxis: lAxis, Entry: lEntry, Other: other, SliceRows: true, Name: name,
			}}, nil
		case rSel:
			other, err := p.filteredAxisFromNode(axes.lhs)
			if err != nil {
				return source{}, err
			}
			return source{arity: 1, vector: &MatrixSliceLookup{
				SliceAxis: rAxis, Entry: rEntry, Other: other, SliceRows: false, Name: name,
			}}, nil
		}
		rows, err := p.filteredAxisFromNode(axes.lhs)
		if err != nil {
			return source{}, err
		}
		cols, err := p.filteredAxisFromNode(axes.rhs)
		if err != nil {
			return source{}, err
		}
		return source{arity: 2, matrix: &MatrixLookup{
			Rows: rows, Cols: cols, ColMajor: axes.op == ";", Name: name,
		}}, nil
	}

	if axis, entry, ok := entrySelection(axes); ok {
		lookup, err := p.propertyLookupFromNode(prop)
		if err != nil {
			return source{}, err
		}
		return source{arity: 0, scalar: &VectorEntryLookup{Axis: axis, Entry: entry, Property: lookup}}, nil
	}

	fa, err := p.filteredAxisFromNode(axes)
	if err != nil {
		return source{}, err
	}
	lookup, err := p.axisLookupFromNode(prop)
	if err != nil {
		return source{}, err
	}
	return source{arity: 1, vector: &VectorLookup{Axis: fa, Lookup: lookup}}, nil
}

func (p *parser) singleName(node *exprNode, expected string) (string, error) {
	if !node.leaf() {
		return "", syntaxError(p.text, node.fragment(), expected)
	}
	return node.text, nil
}

// ParseMatrixQuery parses a query that must yield a matrix.
func ParseMatrixQuery(raw string) (*MatrixQuery, error) {
	p, src, ops, err := parseSource(raw)
	if err != nil {
		return nil, err
	}
	if src.arity != 2 {
		return nil, syntaxError(p.text, "", "expected a two-axis matrix lookup")
	}
	q := &MatrixQuery{Lookup: *src.matrix}
	for _, op := range ops {
		if op.Reduce {
			return nil, syntaxError(p.text, op.String(), "reduction is not allowed in a matrix query")
		}
		q.Ops = append(q.Ops, op)
	}
	return q, nil
}

// ParseVectorQuery parses a query that must yield a vector.
func ParseVectorQuery(raw string) (*VectorQuery, error) {
	p, src, ops, err := parseSource(raw)
	if err != nil {
		return nil, err
	}
	switch src.arity {
	case 1:
		q := &VectorQuery{Source: src.vector}
		for _, op := range ops {
			if op.Reduce {
				return nil, syntaxError(p.text, op.String(), "reduction of a vector yields a scalar")
			}
			q.Ops = append(q.Ops, op)
		}
		return q, nil
	case 2:
		mat := MatrixQuery{Lookup: *src.matrix}
		i := 0
		for ; i < len(ops) && !ops[i].Reduce; i++ {
			mat.Ops = append(mat.Ops, ops[i])
		}
		if i == len(ops) {
			return nil, syntaxError(p.text, "", "expected a reduction of the matrix lookup")
		}
		q := &VectorQuery{Source: &MatrixReduction{Matrix: mat, Op: ops[i]}}
		for _, op := range ops[i+1:] {
			if op.Reduce {
				return nil, syntaxError(p.text, op.String(), "reduction of a vector yields a scalar")
			}
			q.Ops = append(q.Ops, op)
		}
		return q, nil
	}
	return nil, syntaxError(p.text, "", "expected a vector lookup")
}

// ParseScalarQuery parses a query that must yield a scalar.
func ParseScalarQuery(raw string) (*ScalarQuery, error) {
	p, src, ops, err := parseSource(raw)
	if err != nil {
		return nil, err
	}

	var vec *VectorQuery
	switch src.arity {
	case 0:
		q := &ScalarQuery{Source: src.scalar}
		for _, op := range ops {
			if op.Reduce {
				return nil, syntaxError(p.text, op.String(), "cannot reduce a scalar")
			}
			q.Ops = append(q.Ops, op)
		}
		return q, nil
	case 1:
		vec = &VectorQuery{Source: src.vector}
	case 2:
		mat := MatrixQuery{Lookup: *src.matrix}
		i := 0
		for ; i < len(ops) && !ops[i].Reduce; i++ {
			mat.Ops = append(mat.Ops, ops[i])
		}
		if i == len(ops) {
			return nil, syntaxError(p.text, "", "expected a reduction of the matrix lookup")
		}
		vec = &VectorQuery{Source: &MatrixReduction{Matrix: mat, Op: ops[i]}}
		ops = ops[i+1:]
	}

	i := 0
	for ; i < len(ops) && !ops[i].Reduce; i++ {
		vec.Ops = append(vec.Ops, ops[i])
	}
	if i == len(ops) {
		return nil, syntaxError(p.text, "", "expected a reduction of the vector lookup")
	}
	q := &ScalarQuery{Source: &VectorReduction{Vector: *vec, Op: ops[i]}}
	for _, op := range ops[i+1:] {
		if op.Reduce {
			return nil, syntaxError(p.text, op.String(), "cannot reduce a scalar")
		}
		q.Ops = append(q.Ops, op)
	}
	return q, nil
}

func parseSource(raw string) (*parser, source, []Operation, error) {
	p, root, err := parseTree(raw)
	if err != nil {
		return nil, source{}, nil, err
	}
	srcNode, opNodes := splitOps(root)
	src, err := p.classifySource(srcNode)
	if err != nil {
		return nil, source{}, nil, err
	}
	var ops []Operation
	for _, node := range opNodes {
		op, err := p.operationFromNode(node)
		if err != nil {
			return nil, source{}, nil, err
		}
		ops = append(ops, op)
	}
	return p, src, ops, nil
}

// Normalize returns the whitespace- and comment-normalized form of a raw
// query. Error messages quote this form.
func Normalize(raw string) string {
	return normalize(raw)
}
