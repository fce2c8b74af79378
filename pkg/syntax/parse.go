package syntax

import (
	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asmerr"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/expr"
	"github.com/oisee/asm816/pkg/inst"
)

// ParsedLabel is a label definition found at the start of a statement.
type ParsedLabel struct {
	Name     string
	Exported bool
}

// Entity is one parsed element of a line: a label or a statement.  Exactly
// one field is set.
type Entity struct {
	Label     *ParsedLabel
	Statement inst.Statement
}

// parser walks a token slice.  The slice always ends with an end-of-line
// token, so front() is always valid.
type parser struct {
	toks []Token
}

func (p *parser) front() *Token { return &p.toks[0] }

func (p *parser) advance() { p.toks = p.toks[1:] }

func (p *parser) atEnd() bool {
	return p.front().EndOfLine() || p.front().IsChar(':')
}

// atEndOrSuffix additionally stops before a return-convention suffix.
func (p *parser) atEndOrSuffix() bool {
	return p.atEnd() || p.front().IsPunct(PYields) || p.front().IsPunct(PNoReturn)
}

func (p *parser) loc() asmerr.Location { return p.front().Loc }

func (p *parser) consume(ch byte, what string) error {
	if !p.front().IsChar(ch) {
		return asmerr.New("Expected %s, found %s", what, p.front()).
			WithLocation(p.loc())
	}
	p.advance()
	return nil
}

func (p *parser) confirmAtEnd(context string) error {
	if !p.atEnd() {
		return asmerr.New("Unexpected %s %s", p.front(), context).
			WithLocation(p.loc())
	}
	return nil
}

func (p *parser) confirmAtEndOrSuffix(context string) error {
	if !p.atEndOrSuffix() {
		return asmerr.New("Unexpected %s %s", p.front(), context).
			WithLocation(p.loc())
	}
	return nil
}

// confirmLegalRegister rejects register tokens outside the allowed set, to
// produce mode-specific messages like "Register X cannot be used with
// indirect indexing".
func (p *parser) confirmLegalRegister(allowed, context string) error {
	if p.front().IsRegister() {
		reg := byte(p.front().Punct)
		found := false
		for i := 0; i < len(allowed); i++ {
			if allowed[i] == reg {
				found = true
			}
		}
		if !found {
			return asmerr.New("Register %c cannot be used %s", reg, context).
				WithLocation(p.loc())
		}
	}
	return nil
}

// mode parses a flag state name.
func (p *parser) mode() (cpu.StatusFlags, error) {
	loc := p.loc()
	if p.front().Kind != TokIdentifier {
		return cpu.StatusFlags{}, asmerr.New("Expected mode name, found %s", p.front()).
			WithLocation(loc)
	}
	name := p.front().Ident
	p.advance()
	flags, ok := cpu.FromName(name)
	if !ok {
		return cpu.StatusFlags{}, asmerr.New("\"%s\" does not name a flag state", name).
			WithLocation(loc)
	}
	return flags, nil
}

// Expression grammar:
//
//	expr   -> term +- term +- term...
//	term   -> factor */ factor */ factor...
//	factor -> comp | -factor | <factor | >factor | ^factor
//	comp   -> literal | identifier | (expr)

func (p *parser) expression() (expr.Expression, error) {
	term, err := p.term()
	if err != nil {
		return nil, err
	}
	for !p.atEnd() {
		var op expr.BinaryOp
		if p.front().IsChar('+') {
			op = expr.OpAdd
		} else if p.front().IsChar('-') {
			op = expr.OpSubtract
		} else {
			break
		}
		p.advance()
		rhs, err := p.term()
		if err != nil {
			return nil, err
		}
		term = expr.NewBinary(term, rhs, op)
	}
	return term, nil
}

func (p *parser) term() (expr.Expression, error) {
	factor, err := p.factor()
	if err != nil {
		return nil, err
	}
	for !p.atEnd() {
		var op expr.BinaryOp
		if p.front().IsChar('*') {
			op = expr.OpMultiply
		} else if p.front().IsChar('/') {
			op = expr.OpDivide
		} else {
			break
		}
		p.advance()
		rhs, err := p.factor()
		if err != nil {
			return nil, err
		}
		factor = expr.NewBinary(factor, rhs, op)
	}
	return factor, nil
}

func (p *parser) factor() (expr.Expression, error) {
	var op expr.UnaryOp
	haveOp := true
	if p.front().IsChar('-') {
		op = expr.OpNegate
	} else if p.front().IsChar('<') {
		op = expr.OpLowByte
	} else if p.front().IsChar('>') {
		op = expr.OpHighByte
	} else if p.front().IsChar('^') {
		op = expr.OpBankByte
	} else {
		haveOp = false
	}
	if haveOp {
		p.advance()
		arg, err := p.factor()
		if err != nil {
			return nil, err
		}
		return expr.NewUnary(arg, op), nil
	}
	return p.comp()
}

func (p *parser) comp() (expr.Expression, error) {
	if p.front().Kind == TokLiteral {
		literal := expr.NewLiteral(p.front().Value, p.front().NumType)
		p.advance()
		return literal, nil
	}

	// An '@' prefix widens the identifier to 24 bits.
	numType := addr.Word
	if p.front().IsChar('@') {
		p.advance()
		if p.front().Kind != TokIdentifier && !p.front().IsPunct(PScope) {
			return nil, asmerr.New("Expected identifier after '@', found %s", p.front()).
				WithLocation(p.loc())
		}
		numType = addr.Long
	}

	if p.front().IsPunct(PScope) {
		// Qualified global name ("::foo").
		p.advance()
		if p.front().Kind != TokIdentifier {
			return nil, asmerr.New("Expected identifier after '::', found %s", p.front()).
				WithLocation(p.loc())
		}
		name := p.front().Ident
		p.advance()
		return expr.NewIdentifier(
			expr.FullIdentifier{Name: name, Qualified: true}, numType), nil
	}

	if p.front().Kind == TokIdentifier {
		first := p.front().Ident
		p.advance()
		if p.front().IsPunct(PScope) {
			p.advance()
			if p.front().Kind != TokIdentifier {
				return nil, asmerr.New("Expected identifier after '::', found %s", p.front()).
					WithLocation(p.loc())
			}
			second := p.front().Ident
			p.advance()
			return expr.NewIdentifier(
				expr.FullIdentifier{Module: first, Name: second, Qualified: true},
				numType), nil
		}
		return expr.NewIdentifier(expr.FullIdentifier{Name: first}, numType), nil
	}

	if p.front().IsChar('(') {
		p.advance()
		parenthesized, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.consume(')', "close parenthesis"); err != nil {
			return nil, err
		}
		return parenthesized, nil
	}

	return nil, asmerr.New("Expected expression, found %s", p.front()).
		WithLocation(p.loc())
}

func createInstruction(mnemonic inst.Mnemonic, suffix inst.Suffix,
	sam inst.SyntacticAddressingMode, loc asmerr.Location,
	arg1, arg2 expr.Expression) (*inst.Instruction, error) {
	mode, err := inst.DeduceMode(mnemonic, sam, suffix, arg1, arg2)
	if err != nil {
		return nil, asmerr.Decorate(err, loc)
	}
	if suffix != inst.SuffixNone &&
		inst.FlagControllingInstructionSize(mnemonic) == inst.NotVariable {
		return nil, asmerr.New("Instruction `%s` does not support a length suffix",
			mnemonic).WithLocation(loc)
	}
	return &inst.Instruction{
		Mnemonic: mnemonic,
		Suffix:   suffix,
		Mode:     mode,
		Arg1:     arg1,
		Arg2:     arg2,
		Location: loc,
	}, nil
}

// parseInstructionCore reads an instruction body, without any return
// convention suffix.
func (p *parser) parseInstructionCore() (*inst.Instruction, error) {
	if p.atEnd() || p.front().Kind != TokMnemonic {
		return nil, asmerr.New("logic error: parseInstruction() called on non-mnemonic")
	}
	mnemonic := p.front().Mnemonic
	p.advance()

	suffix := inst.SuffixNone
	if p.front().Kind == TokSuffix {
		suffix = p.front().Suffix
		p.advance()
	}

	if p.atEndOrSuffix() {
		return createInstruction(mnemonic, suffix, inst.SAImp, p.loc(), nil, nil)
	}

	if err := p.confirmLegalRegister("A", "directly"); err != nil {
		return nil, err
	}
	if p.front().IsChar('A') {
		p.advance()
		if err := p.confirmAtEndOrSuffix("after A operand"); err != nil {
			return nil, err
		}
		return createInstruction(mnemonic, suffix, inst.SAAcc, p.loc(), nil, nil)
	}

	if p.front().IsChar('#') {
		p.advance()
		arg1, err := p.expression()
		if err != nil {
			return nil, err
		}
		if p.atEndOrSuffix() {
			return createInstruction(mnemonic, suffix, inst.SAImm, p.loc(), arg1, nil)
		}
		if err := p.consume(',', "comma or end of line"); err != nil {
			return nil, err
		}
		if err := p.consume('#', "#"); err != nil {
			return nil, err
		}
		arg2, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.confirmAtEndOrSuffix("after immediate arguments"); err != nil {
			return nil, err
		}
		return createInstruction(mnemonic, suffix, inst.SAMov, p.loc(), arg1, arg2)
	}

	if p.front().IsChar('[') {
		p.advance()
		arg1, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.consume(']', "close bracket"); err != nil {
			return nil, err
		}
		if p.atEndOrSuffix() {
			return createInstruction(mnemonic, suffix, inst.SALng, p.loc(), arg1, nil)
		}
		if err := p.consume(',', "comma or end of line"); err != nil {
			return nil, err
		}
		if err := p.confirmLegalRegister("Y", "with indirect long indexing"); err != nil {
			return nil, err
		}
		if err := p.consume('Y', "register Y"); err != nil {
			return nil, err
		}
		if err := p.confirmAtEndOrSuffix("after indirect long indexed argument"); err != nil {
			return nil, err
		}
		return createInstruction(mnemonic, suffix, inst.SALngY, p.loc(), arg1, nil)
	}

	// The one ambiguity in the grammar: a leading '(' is either an indirect
	// argument or a parenthesized subexpression.  Indirect is preferred;
	// on failure we back up and reparse as an expression.
	if p.front().IsChar('(') {
		backup := p.toks

		p.advance()
		arg1, err := p.expression()
		if err != nil {
			// If this isn't an expression here, it wouldn't parse as a
			// subexpression either.
			return nil, err
		}
		if p.front().IsChar(',') {
			// A comma inside the outermost parentheses has to be indexing
			// syntax: "OPR (arg1, X)" or "OPR (arg1, S), Y".
			p.advance()
			if err := p.confirmLegalRegister("XS", "with indexed indirect mode"); err != nil {
				return nil, err
			}
			if p.front().IsChar('X') {
				p.advance()
				if err := p.consume(')', "close parenthesis"); err != nil {
					return nil, err
				}
				if err := p.confirmAtEndOrSuffix("after indexed indirect argument"); err != nil {
					return nil, err
				}
				return createInstruction(mnemonic, suffix, inst.SAIndX, p.loc(), arg1, nil)
			}
			if err := p.consume('S', "X or S register"); err != nil {
				return nil, err
			}
			if err := p.consume(')', "close parenthesis"); err != nil {
				return nil, err
			}
			if err := p.consume(',', "comma after stack relative indirect"); err != nil {
				return nil, err
			}
			if err := p.confirmLegalRegister("Y", "with stack relative indirect indexing"); err != nil {
				return nil, err
			}
			if err := p.consume('Y', "register Y"); err != nil {
				return nil, err
			}
			if err := p.confirmAtEndOrSuffix("after stack relative indirect indexed argument"); err != nil {
				return nil, err
			}
			return createInstruction(mnemonic, suffix, inst.SAStkY, p.loc(), arg1, nil)
		}
		if p.front().IsChar(')') {
			// "OPR (arg1)" is legal alone or followed by ", Y".  Anything
			// else reparses as a direct expression below.
			p.advance()
			if p.atEndOrSuffix() {
				return createInstruction(mnemonic, suffix, inst.SAInd, p.loc(), arg1, nil)
			}
			if p.front().IsChar(',') {
				p.advance()
				if err := p.confirmLegalRegister("Y", "with indirect indexing"); err != nil {
					return nil, err
				}
				if err := p.consume('Y', "register Y"); err != nil {
					return nil, err
				}
				if err := p.confirmAtEndOrSuffix("after indirect indexed argument"); err != nil {
					return nil, err
				}
				return createInstruction(mnemonic, suffix, inst.SAIndY, p.loc(), arg1, nil)
			}
			// Abandon the indirect reading.
			p.toks = backup
		}
	}

	// Everything else failed; parse a bare expression.
	arg1, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.atEndOrSuffix() {
		return createInstruction(mnemonic, suffix, inst.SADir, p.loc(), arg1, nil)
	}
	if err := p.consume(',', "comma or end of line"); err != nil {
		return nil, err
	}
	if err := p.confirmLegalRegister("XYS", "with direct indexing"); err != nil {
		return nil, err
	}
	if p.front().IsChar('X') {
		p.advance()
		if err := p.confirmAtEndOrSuffix("after indexed argument"); err != nil {
			return nil, err
		}
		return createInstruction(mnemonic, suffix, inst.SADirX, p.loc(), arg1, nil)
	}
	if p.front().IsChar('Y') {
		p.advance()
		if err := p.confirmAtEndOrSuffix("after indexed argument"); err != nil {
			return nil, err
		}
		return createInstruction(mnemonic, suffix, inst.SADirY, p.loc(), arg1, nil)
	}
	if err := p.consume('S', "X, Y, or S register"); err != nil {
		return nil, err
	}
	if err := p.confirmAtEndOrSuffix("after stack relative argument"); err != nil {
		return nil, err
	}
	return createInstruction(mnemonic, suffix, inst.SAStk, p.loc(), arg1, nil)
}

func (p *parser) parseReturnConvention() (cpu.ReturnConvention, error) {
	if p.front().IsPunct(PNoReturn) {
		p.advance()
		return cpu.NoReturnConvention(), nil
	}
	if p.front().IsPunct(PYields) {
		p.advance()
		flags, err := p.mode()
		if err != nil {
			return cpu.ReturnConvention{}, err
		}
		return cpu.YieldsConvention(flags), nil
	}
	return cpu.ReturnConvention{}, nil
}

func (p *parser) parseInstruction() (*inst.Instruction, error) {
	result, err := p.parseInstructionCore()
	if err != nil {
		return nil, err
	}
	convention, err := p.parseReturnConvention()
	if err != nil {
		return nil, err
	}
	if !convention.IsDefault() && result.Mnemonic != inst.Mjsl &&
		result.Mnemonic != inst.Mjsr {
		return nil, asmerr.New(
			"return calling convention not supported on instruction %s",
			result.Mnemonic)
	}
	result.Return = convention
	return result, nil
}

func (p *parser) parseDirective() (*inst.Directive, error) {
	if p.atEnd() || p.front().Kind != TokDirective {
		return nil, asmerr.New("logic error: parseDirective() called on non-directive-name")
	}
	directive := &inst.Directive{Name: p.front().Directive}
	p.advance()

	directiveType := inst.DirectiveTypeByName(directive.Name)
	switch directiveType {
	case inst.DTNoArg:
		if err := p.confirmAtEnd("after no-arg directive"); err != nil {
			return nil, err
		}
		return directive, nil

	case inst.DTSingleArg, inst.DTConstantArg, inst.DTNameArg:
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		if directiveType == inst.DTConstantArg && arg.RequiresLookup() {
			return nil, asmerr.New("%s directive requires a constant value argument",
				directive.Name).WithLocation(p.loc())
		}
		if directiveType == inst.DTNameArg {
			if _, ok := expr.SimpleIdentifier(arg); !ok {
				return nil, asmerr.New("%s directive requires a simple name argument",
					directive.Name).WithLocation(p.loc())
			}
		}
		directive.Argument = arg
		if err := p.confirmAtEnd("after directive argument"); err != nil {
			return nil, err
		}
		return directive, nil

	case inst.DTListArg:
		// At least one argument, more comma-separated.
		for {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			directive.List = append(directive.List, arg)
			if p.atEnd() {
				return directive, nil
			}
			if err := p.consume(',', "comma or end of line"); err != nil {
				return nil, err
			}
		}

	case inst.DTRemoteArg, inst.DTFlagArg, inst.DTCallingConventionArg:
		if directiveType == inst.DTRemoteArg {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			directive.Argument = arg
		}
		flags, err := p.mode()
		if err != nil {
			return nil, err
		}
		directive.FlagArg = flags
		if directiveType == inst.DTFlagArg {
			if err := p.confirmAtEnd("after flag state"); err != nil {
				return nil, err
			}
			return directive, nil
		}
		convention, err := p.parseReturnConvention()
		if err != nil {
			return nil, err
		}
		directive.Return = convention
		if err := p.confirmAtEnd("after flag state"); err != nil {
			return nil, err
		}
		return directive, nil

	default:
		return nil, asmerr.New("logic error: unhandled directive argument type")
	}
}

// Parse consumes a tokenized line (or lines) and returns the labels and
// statements found.
func Parse(tokens []Token) ([]Entity, error) {
	var result []Entity
	p := &parser{toks: tokens}

	for len(p.toks) > 0 {
		// An identifier at the beginning of a line is a label, with or
		// without a colon.  Multiple labels need colons:
		//   foo adc #$12       ; okay
		//   foo: adc #$12      ; okay
		//   foo bar adc #$12   ; unexpected 'bar'
		//   foo: bar adc #$12  ; okay
		exported := false
		if p.front().IsPunct(PExport) {
			p.advance()
			exported = true
			if p.front().Kind != TokIdentifier {
				return nil, asmerr.New(
					"Expected label name after `export` keyword but found %s",
					p.front()).WithLocation(p.loc())
			}
		}
		if p.front().Kind == TokIdentifier {
			result = append(result, Entity{
				Label: &ParsedLabel{Name: p.front().Ident, Exported: exported}})
			p.advance()
			if len(p.toks) > 0 && p.front().IsChar(':') {
				p.advance()
				continue
			}
		}

		if p.front().EndOfLine() {
			p.advance()
			if len(p.toks) == 0 {
				return result, nil
			}
			continue
		}
		if p.front().IsChar(':') {
			p.advance()
			continue
		}

		// Scope brackets are shorthand directives.
		if p.front().IsChar('{') || p.front().IsChar('}') {
			name := inst.DBegin
			if p.front().IsChar('}') {
				name = inst.DEnd
			}
			directive := &inst.Directive{Name: name, Location: p.loc()}
			p.advance()
			result = append(result, Entity{Statement: directive})
			continue
		}

		if p.front().Kind == TokDirective {
			directive, err := p.parseDirective()
			if err != nil {
				return nil, err
			}
			if !p.atEnd() {
				return nil, asmerr.New("logic error: parseDirective() did not read to a line end")
			}
			directive.Location = p.loc()
			p.advance()
			result = append(result, Entity{Statement: directive})
			continue
		}

		if p.front().Kind != TokMnemonic {
			return nil, asmerr.New("Expected mnemonic or directive but found %s",
				p.front()).WithLocation(p.loc())
		}
		instruction, err := p.parseInstruction()
		if err != nil {
			return nil, err
		}
		if !p.atEnd() {
			return nil, asmerr.New("logic error: parseInstruction() did not read to a line end")
		}
		instruction.Location = p.loc()
		p.advance()
		result = append(result, Entity{Statement: instruction})
	}
	return result, nil
}

// ParseExpression parses a standalone expression string.
func ParseExpression(s string) (expr.Expression, error) {
	tokens, err := Tokenize(s, asmerr.Location{})
	if err != nil {
		return nil, err
	}
	p := &parser{toks: tokens}
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.confirmAtEnd("after expression"); err != nil {
		return nil, err
	}
	return e, nil
}
