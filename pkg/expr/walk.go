package expr

// CollectIdentifiers returns every identifier referenced by the expression,
// in left-to-right order.  Used by the assembler to compute cross-module
// .equ dependencies.
func CollectIdentifiers(e Expression) []FullIdentifier {
	var out []FullIdentifier
	collect(e, &out)
	return out
}

func collect(e Expression, out *[]FullIdentifier) {
	switch node := e.(type) {
	case *Identifier:
		*out = append(*out, node.Ident)
	case *Binary:
		collect(node.LHS, out)
		collect(node.RHS, out)
	case *Unary:
		collect(node.Arg, out)
	case *Label:
		collect(node.Held, out)
	}
}
