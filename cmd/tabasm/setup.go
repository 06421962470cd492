package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/grimdork/climate/arg"
	"github.com/k0kubun/pp/v3"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/config"
	"github.com/Urethramancer/tabasm/project"
)

// globals gives commands access to the top-level options.
type globals struct {
	opt *arg.Options
	log *slog.Logger
}

func (g *globals) logger() *slog.Logger {
	if g.log != nil {
		return g.log
	}
	level := slog.LevelError
	switch v := g.opt.GetInt("verbose"); {
	case v >= 3:
		level = slog.LevelDebug
	case v == 2:
		level = slog.LevelInfo
	case v == 1:
		level = slog.LevelWarn
	}
	g.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return g.log
}

func (g *globals) debug(label string, v any) {
	if !g.opt.GetBool("debug") {
		return
	}
	pp.Fprintf(os.Stderr, "%s: %v\n", label, v)
}

func (g *globals) arch() (*arch.Definition, error) {
	if path := g.opt.GetString("arch-file"); path != "" {
		g.logger().Info("loading architecture", "file", path)
		return config.LoadArchFile(path)
	}
	return arch.Builtin(g.opt.GetString("arch"))
}

// contextPath is where the context is read from and saved to. Editing
// commands fall back to ./ctx.lua when nothing else names a file.
func (g *globals) contextPath(editing bool) string {
	path := config.FindContext(g.opt.GetString("ctx"))
	if path == "" && editing {
		path = config.DefaultContextFile
	}
	return path
}

// context loads the context file, or returns an empty context when there is
// none. A missing file is only an error when it was asked for.
func (g *globals) context(editing bool) (*project.Context, string, error) {
	path := g.contextPath(editing)
	if path == "" {
		return project.New(), "", nil
	}
	ctx, err := config.LoadContextFile(path)
	if err != nil {
		if editing && errors.Is(err, fs.ErrNotExist) {
			return project.New(), path, nil
		}
		return nil, path, err
	}
	g.logger().Info("loaded context", "file", path, "symbols", len(ctx.Symbols), "vectors", len(ctx.Vectors))
	return ctx, path, nil
}

// parseNumber accepts $hex, 0x hex, %binary and decimal.
func parseNumber(s string) (uint32, error) {
	t := strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(t, "$"):
		t, base = t[1:], 16
	case strings.HasPrefix(t, "0x"), strings.HasPrefix(t, "0X"):
		t, base = t[2:], 16
	case strings.HasPrefix(t, "%"):
		t, base = t[1:], 2
	}
	n, err := strconv.ParseUint(t, base, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return uint32(n), nil
}
