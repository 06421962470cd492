package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/grimdork/climate/arg"
)

func main() {
	opt := arg.New("tabasm")
	g := &globals{opt: opt}
	if err := setup(opt, g); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err := opt.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, arg.ErrNoArgs) {
			opt.PrintHelp()
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup declares the global options and the subcommands.
func setup(opt *arg.Options, g *globals) error {
	opt.SetDefaultHelp(true)
	err := errors.Join(
		opt.SetOption(arg.GroupDefault, "a", "arch", "Built-in architecture (6502, 65c02, 65816).", "65816", false, arg.VarString, nil),
		opt.SetOption(arg.GroupDefault, "A", "arch-file", "Load the architecture from a Lua file instead.", "", false, arg.VarString, nil),
		opt.SetOption(arg.GroupDefault, "c", "ctx", "Context file. Defaults to $TABASM_CTX_PATH, then ./ctx.lua.", "", false, arg.VarString, nil),
		opt.SetOption(arg.GroupDefault, "v", "verbose", "Log level: 0 errors, 1 warnings, 2 info, 3 debug.", 0, false, arg.VarInt, nil),
		opt.SetOption(arg.GroupDefault, "d", "debug", "Dump parsed programs and reports.", false, false, arg.VarBool, nil),
	)
	if err != nil {
		return err
	}

	cmd := opt.SetCommand("assemble", "Assemble source files.", arg.GroupDefault, g.assemble, []string{"asm", "a"}).Options
	cmd.SetDefaultHelp(true)
	err = errors.Join(
		cmd.SetOption(arg.GroupDefault, "o", "output", "Output file. Several inputs get one output each, named after the input.", "", false, arg.VarString, nil),
		cmd.SetOption(arg.GroupDefault, "x", "hex", "Write a hex dump instead of a binary.", false, false, arg.VarBool, nil),
		cmd.SetOption(arg.GroupDefault, "l", "listing", "Print a listing to standard output.", false, false, arg.VarBool, nil),
		cmd.SetOption(arg.GroupDefault, "s", "symbols", "Print the symbol table to standard output.", false, false, arg.VarBool, nil),
		cmd.SetOption(arg.GroupDefault, "f", "force", "Write binary output to a terminal.", false, false, arg.VarBool, nil),
		cmd.SetPositional("FILES", "Source files.", nil, true, arg.VarStringSlice),
	)
	if err != nil {
		return err
	}

	cmd = opt.SetCommand("disasm", "Disassemble a binary.", arg.GroupDefault, g.disasm, []string{"dis", "d"}).Options
	cmd.SetDefaultHelp(true)
	err = errors.Join(
		cmd.SetOption(arg.GroupDefault, "O", "org", "Load address of the binary. Defaults to the context origin.", "", false, arg.VarString, nil),
		cmd.SetOption(arg.GroupDefault, "o", "output", "Output file.", "", false, arg.VarString, nil),
		cmd.SetPositional("FILE", "Binary file.", "", true, arg.VarString),
	)
	if err != nil {
		return err
	}

	cmd = opt.SetCommand("patch", "Apply the context patches to a binary.", arg.GroupDefault, g.patch, nil).Options
	cmd.SetDefaultHelp(true)
	err = errors.Join(
		cmd.SetOption(arg.GroupDefault, "o", "output", "Output file. Defaults to patching FILE in place.", "", false, arg.VarString, nil),
		cmd.SetPositional("FILE", "Binary file.", "", true, arg.VarString),
	)
	if err != nil {
		return err
	}

	opt.SetCommand("dump-arch", "Print the architecture as Lua.", arg.GroupDefault, g.dumpArch, nil)
	opt.SetCommand("dump-ctx", "Print the context as Lua.", arg.GroupDefault, g.dumpCtx, nil)

	cmd = opt.SetCommand("defsym", "Define a symbol in the context file.", arg.GroupDefault, g.defsym, nil).Options
	cmd.SetDefaultHelp(true)
	err = errors.Join(
		cmd.SetOption(arg.GroupDefault, "k", "kind", "Symbol kind.", "const", false, arg.VarString, []any{"const", "label", "vector"}),
		cmd.SetPositional("NAME", "Symbol name.", "", true, arg.VarString),
		cmd.SetPositional("VALUE", "Value ($hex, 0x hex, %binary or decimal).", "", true, arg.VarString),
	)
	if err != nil {
		return err
	}

	cmd = opt.SetCommand("org", "Set the origin in the context file.", arg.GroupDefault, g.org, nil).Options
	cmd.SetDefaultHelp(true)
	return cmd.SetPositional("ADDRESS", "Origin address.", "", true, arg.VarString)
}
