package assembler

import "github.com/Urethramancer/tabasm/arch"

// StatementKind defines the type of a parsed statement.
type StatementKind uint8

const (
	// StmtLabel defines a label at the current address.
	StmtLabel StatementKind = iota
	// StmtInstruction is a machine instruction.
	StmtInstruction
	// StmtDirective is an assembler directive.
	StmtDirective
	// StmtEquate binds a name to an expression.
	StmtEquate
)

var stmtNames = []string{"label", "instruction", "directive", "equate"}

func (k StatementKind) String() string { return stmtNames[k] }

// Arg is one directive argument: an expression or a string.
type Arg struct {
	Expr Expr
	Str  string
	// IsString is set for string arguments.
	IsString bool
	Span     Span
}

// Statement is one parsed element of the source. A line holding a label and
// an instruction yields two statements.
type Statement struct {
	Kind StatementKind
	Span Span
	Line int

	// Name is the label or equate name, local names already qualified.
	Name  string
	Value Expr

	Instr *arch.Instruction
	// Modes are the candidate addressing modes the instruction supports,
	// smallest operand first. Forced is the byte count from a size prefix.
	Modes    []*arch.Mode
	Forced   int
	Operands []Expr

	Directive string
	Args      []Arg
}

// Mnemonic returns the instruction mnemonic, or "".
func (s *Statement) Mnemonic() string {
	if s.Instr == nil {
		return ""
	}
	return s.Instr.Mnemonic
}

// Program is the parsed source. Statements are kept in source order.
type Program struct {
	Statements []Statement
	// Lines holds the source text, for listings.
	Lines []string
}
