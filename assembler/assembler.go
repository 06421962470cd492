// Package assembler translates 65xx-family source into a binary image using
// an architecture described as data. It does no I/O: source text, an
// architecture and a context go in, an image and a report come out.
package assembler

import (
	"fmt"
	"log/slog"

	"github.com/Urethramancer/tabasm/arch"
	"github.com/Urethramancer/tabasm/project"
)

// Options control an assembly run.
type Options struct {
	// Logger receives debug records per phase. Nil discards them.
	Logger *slog.Logger
	// ErrorLimit is how many lex and parse errors to collect before
	// stopping. 1 stops at the first; 0 or less collects all.
	ErrorLimit int
}

// Option changes Options.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithErrorLimit sets how many lex and parse errors are collected.
func WithErrorLimit(n int) Option {
	return func(o *Options) { o.ErrorLimit = n }
}

// Assembler holds what stays fixed between runs. Runs share nothing mutable,
// so one Assembler may be used from several goroutines.
type Assembler struct {
	def  *arch.Definition
	ctx  *project.Context
	opts Options
}

// New creates an Assembler for an architecture and context. A nil context is
// an empty one.
func New(a *arch.Definition, c *project.Context, opts ...Option) *Assembler {
	if c == nil {
		c = project.New()
	}
	o := Options{ErrorLimit: 1}
	for _, f := range opts {
		f(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{def: a, ctx: c.Clone(), opts: o}
}

// Arch returns the architecture.
func (asm *Assembler) Arch() *arch.Definition {
	return asm.def
}

// Parse runs the lexer and parser only.
func (asm *Assembler) Parse(src string) (*Program, error) {
	return Parse(src, asm.def, asm.opts.ErrorLimit)
}

// Assemble translates src. On error no image is returned.
func (asm *Assembler) Assemble(src string) (*Image, *Report, error) {
	log := asm.opts.Logger.With("arch", asm.def.Name)
	if err := asm.ctx.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid context: %w", err)
	}

	log.Debug("phase", "phase", "parse")
	prog, err := asm.Parse(src)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("parsed", "statements", len(prog.Statements))

	r := newResolver(asm.def, asm.ctx, prog, log)
	log.Debug("phase", "phase", "pass1", "origin", r.origin)
	if err := r.pass1(); err != nil {
		return nil, nil, err
	}
	if err := r.resolveDeferred(); err != nil {
		return nil, nil, err
	}

	log.Debug("phase", "phase", "pass2")
	units, listing, err := r.pass2()
	if err != nil {
		return nil, nil, err
	}
	vunits, vectors, err := r.vectorUnits()
	if err != nil {
		return nil, nil, err
	}

	log.Debug("phase", "phase", "image", "units", len(units)+len(vunits))
	img, err := buildImage(append(units, vunits...))
	if err != nil {
		return nil, nil, err
	}
	for _, p := range asm.ctx.Patches {
		img.apply(p)
	}

	rep := &Report{
		Arch:    asm.def.Name,
		Symbols: r.syms.Sorted(),
		Vectors: vectors,
		Listing: listing,
	}
	for _, s := range img.Segments() {
		rep.Segments = append(rep.Segments, SegmentInfo{Start: s.Start, End: s.End()})
	}
	return img, rep, nil
}

// Assemble is a one-shot New(a, c, opts...).Assemble(src).
func Assemble(src string, a *arch.Definition, c *project.Context, opts ...Option) (*Image, *Report, error) {
	return New(a, c, opts...).Assemble(src)
}
