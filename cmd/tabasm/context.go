package main

import (
	"os"

	"github.com/grimdork/climate/arg"

	"github.com/Urethramancer/tabasm/config"
	"github.com/Urethramancer/tabasm/project"
)

func (g *globals) dumpArch(*arg.Options) error {
	def, err := g.arch()
	if err != nil {
		return err
	}
	return config.DumpArch(os.Stdout, def)
}

func (g *globals) dumpCtx(*arg.Options) error {
	ctx, _, err := g.context(false)
	if err != nil {
		return err
	}
	return config.DumpContext(os.Stdout, ctx)
}

// defsym adds or replaces a symbol and saves the context file.
func (g *globals) defsym(opt *arg.Options) error {
	kind, err := project.ParseSymbolKind(opt.GetString("kind"))
	if err != nil {
		return err
	}
	v, err := parseNumber(opt.GetPosString("VALUE"))
	if err != nil {
		return err
	}
	return g.edit(func(ctx *project.Context) {
		ctx.SetSymbol(project.Symbol{Name: opt.GetPosString("NAME"), Value: v, Kind: kind})
	})
}

func (g *globals) org(opt *arg.Options) error {
	addr, err := parseNumber(opt.GetPosString("ADDRESS"))
	if err != nil {
		return err
	}
	return g.edit(func(ctx *project.Context) {
		ctx.SetOrigin(addr)
	})
}

// edit loads the context, applies fn and saves it back if it is still valid.
func (g *globals) edit(fn func(*project.Context)) error {
	ctx, path, err := g.context(true)
	if err != nil {
		return err
	}
	fn(ctx)
	if err := ctx.Validate(); err != nil {
		return err
	}
	if err := config.SaveContextFile(path, ctx); err != nil {
		return err
	}
	g.logger().Info("saved context", "file", path)
	return nil
}

// patch applies the context patches to a binary file.
func (g *globals) patch(opt *arg.Options) error {
	ctx, _, err := g.context(false)
	if err != nil {
		return err
	}
	file := opt.GetPosString("FILE")
	out := opt.GetString("output")
	if out == "" {
		out = file
	}
	n, err := patchFile(ctx, file, out)
	if err != nil {
		return err
	}
	g.logger().Info("patched", "file", file, "output", out, "patches", len(ctx.Patches), "bytes", n)
	return nil
}

func patchFile(ctx *project.Context, in, out string) (int, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return 0, err
	}
	data = ctx.Patch(data)
	return len(data), os.WriteFile(out, data, 0o644)
}
