package main

import (
	"fmt"
	"os"

	"github.com/grimdork/climate/arg"

	"github.com/Urethramancer/tabasm/disassembler"
)

func (g *globals) disasm(opt *arg.Options) error {
	def, err := g.arch()
	if err != nil {
		return err
	}
	ctx, _, err := g.context(false)
	if err != nil {
		return err
	}

	file := opt.GetPosString("FILE")
	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	org := ctx.Origin
	if s := opt.GetString("org"); s != "" {
		org, err = parseNumber(s)
		if err != nil {
			return err
		}
	}

	text, err := disassembler.Disassemble(code, org, def, ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	g.logger().Info("disassembled", "file", file, "bytes", len(code), "origin", org)

	out := opt.GetString("output")
	if out == "" {
		fmt.Print(text)
		return nil
	}
	return os.WriteFile(out, []byte(text), 0o644)
}
