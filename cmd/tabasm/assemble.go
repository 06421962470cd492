package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/grimdork/climate/arg"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Urethramancer/tabasm/assembler"
)

type result struct {
	file string
	img  *assembler.Image
	rep  *assembler.Report
}

func (g *globals) assemble(opt *arg.Options) error {
	files := opt.GetPosStringSlice("FILES")
	if len(files) == 0 {
		return errors.New("no input files")
	}
	def, err := g.arch()
	if err != nil {
		return err
	}
	ctx, _, err := g.context(false)
	if err != nil {
		return err
	}

	log := g.logger()
	asm := assembler.New(def, ctx, assembler.WithLogger(log))
	results := make([]result, len(files))
	var eg errgroup.Group
	for i, file := range files {
		eg.Go(func() error {
			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if g.opt.GetBool("debug") {
				if prog, err := asm.Parse(string(src)); err == nil {
					g.debug(file, prog)
				}
			}
			img, rep, err := asm.Assemble(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			log.Info("assembled", "file", file, "start", img.Start(), "end", img.End())
			results[i] = result{file: file, img: img, rep: rep}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	hex := opt.GetBool("hex")
	out := opt.GetString("output")
	for _, r := range results {
		g.debug(r.file, r.rep)
		if err := g.writeImage(r, outputName(r.file, out, len(files), hex), ctx.Fill, hex, opt.GetBool("force")); err != nil {
			return err
		}
		if opt.GetBool("listing") {
			if err := r.rep.WriteListing(os.Stdout); err != nil {
				return err
			}
		}
		if opt.GetBool("symbols") {
			if err := r.rep.WriteSymbols(os.Stdout); err != nil {
				return err
			}
		}
	}
	return nil
}

// outputName picks where an image goes. One input writes to out, or to
// standard output when out is empty. Several inputs write next to their
// sources, or into out as a directory.
func outputName(file, out string, inputs int, hex bool) string {
	if inputs == 1 {
		return out
	}
	ext := ".bin"
	if hex {
		ext = ".hex"
	}
	name := strings.TrimSuffix(file, filepath.Ext(file)) + ext
	if out != "" {
		name = filepath.Join(out, filepath.Base(name))
	}
	return name
}

func (g *globals) writeImage(r result, name string, fill byte, hex, force bool) error {
	var buf bytes.Buffer
	if name == "" && !hex && !force && term.IsTerminal(int(os.Stdout.Fd())) {
		g.logger().Warn("not writing a binary to the terminal, use --force", "file", r.file)
		hex = true
	}
	if hex {
		if err := hexDump(&buf, r.img); err != nil {
			return err
		}
	} else {
		buf.Write(r.img.Bytes(fill))
	}

	if name == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
		return err
	}
	g.logger().Info("wrote", "file", name, "bytes", buf.Len())
	return nil
}

// hexDump prints each segment as lines of an address and up to 16 bytes.
func hexDump(w io.Writer, img *assembler.Image) error {
	for _, seg := range img.Segments() {
		addr := seg.Start
		for chunk := range slices.Chunk(seg.Data, 16) {
			hex := make([]string, len(chunk))
			for i, b := range chunk {
				hex[i] = fmt.Sprintf("%02X", b)
			}
			if _, err := fmt.Fprintf(w, "%06X: %s\n", addr, strings.Join(hex, " ")); err != nil {
				return err
			}
			addr += uint32(len(chunk))
		}
	}
	return nil
}
