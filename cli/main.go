package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/exif-surgery/core"
	"github.com/ankit-chaubey/exif-surgery/core/exif"
	"github.com/ankit-chaubey/exif-surgery/core/image"
)

const usage = `surgery - EXIF surgery for JPEG, PNG and WebP

Usage:
  surgery view  [flags] <file>
  surgery stamp [flags] -t "YYYY:MM:DD HH:MM:SS" <file>
  surgery set   [flags] <file> Key=Value...
  surgery strip [flags] <file>
  surgery tags

A Key with an empty value (Key=) deletes the tag.
Run "surgery <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "view":
		err = cmdView(rest, stdout, stderr)
	case "stamp":
		err = cmdStamp(rest, stdout, stderr)
	case "set":
		err = cmdSet(rest, stdout, stderr)
	case "strip":
		err = cmdStrip(rest, stdout, stderr)
	case "tags":
		cmdTags(stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		err = errors.Errorf("unknown command %q", cmd)
	}
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		core.PrintError(stderr, err)
		return 1
	}
	return 0
}

// common holds the flags every file command accepts.
type common struct {
	debug     bool
	bigEndian bool
	strict    bool
	jfifFirst bool
	noPromote bool
	format    string
	out       string

	stderr io.Writer
}

func newFlagSet(name string, c *common, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&c.debug, "v", false, "debug logging to stderr")
	fs.BoolVar(&c.bigEndian, "be", false, "create new EXIF segments big-endian")
	fs.BoolVar(&c.strict, "strict", false, "reject unknown IFD value types")
	fs.BoolVar(&c.jfifFirst, "jfif-first", false, "JPEG: insert APP1 after APP0/JFIF instead of after SOI")
	fs.BoolVar(&c.noPromote, "no-webp-promote", false, "WebP: do not add a VP8X header to simple files")
	fs.StringVar(&c.format, "format", "", "container format (jpeg, png, webp); detected when empty")
	c.stderr = stderr
	return fs
}

func (c *common) options() image.Options {
	level := zerolog.InfoLevel
	if c.debug {
		level = zerolog.DebugLevel
	}
	opts := image.DefaultOptions()
	opts.Logger = zerolog.New(zerolog.ConsoleWriter{Out: c.stderr, NoColor: true}).
		Level(level).With().Timestamp().Logger()
	opts.Strict = c.strict
	opts.KeepJFIFFirst = c.jfifFirst
	opts.PromoteWebP = !c.noPromote
	if c.bigEndian {
		opts.ByteOrder = binary.BigEndian
	}
	return opts
}

// load reads path and resolves its format, from -format or by detection.
func (c *common) load(path string) ([]byte, core.FormatID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.FmtUnknown, errors.Wrap(err, "read")
	}
	if c.format != "" {
		id, err := core.ParseFormat(c.format)
		return data, id, err
	}
	id := core.DetectFormat(data, path)
	if id == core.FmtUnknown {
		return nil, id, errors.Wrapf(core.ErrInvalidFormat, "cannot detect format of %s", path)
	}
	return data, id, nil
}

// save writes data to -o, or over src when -o is empty.
func (c *common) save(src string, data []byte) (string, error) {
	dst := core.ResolveOutPath(src, c.out)
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(src); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return "", errors.Wrap(err, "write")
	}
	return dst, nil
}

func cmdView(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("view", &c, stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	verbose := fs.Bool("verbose", false, "show raw type and count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("view: expected exactly one file")
	}
	path := fs.Arg(0)
	data, id, err := c.load(path)
	if err != nil {
		return err
	}
	m, err := image.NewWithOptions(id, c.options()).View(data)
	if err != nil {
		return err
	}
	m.FilePath = path
	p := core.NewPrinter(*jsonOut, *verbose)
	p.Writer = stdout
	p.PrintMetadata(m)
	return nil
}

func cmdStamp(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("stamp", &c, stderr)
	fs.StringVar(&c.out, "o", "", "output file (default: overwrite input)")
	ts := fs.String("t", "", `timestamp, "YYYY:MM:DD HH:MM:SS"`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("stamp: expected exactly one file")
	}
	if *ts == "" {
		return errors.New("stamp: -t is required")
	}
	path := fs.Arg(0)
	data, id, err := c.load(path)
	if err != nil {
		return err
	}
	out, err := image.NewEngine(c.options()).Embed(data, *ts, id)
	if err != nil {
		return err
	}
	dst, err := c.save(path, out)
	if err != nil {
		return err
	}
	p := core.NewPrinter(false, false)
	p.Writer = stdout
	p.PrintSuccess(fmt.Sprintf("DateTimeOriginal = %s → %s", *ts, dst))
	return nil
}

func cmdSet(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("set", &c, stderr)
	fs.StringVar(&c.out, "o", "", "output file (default: overwrite input)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("set: expected a file and at least one Key=Value")
	}
	path := fs.Arg(0)
	opts := core.EditOptions{Set: map[string]string{}}
	for _, kv := range fs.Args()[1:] {
		k, v, ok := core.ParseKV(kv)
		if !ok {
			return errors.Errorf("set: %q is not Key=Value", kv)
		}
		if v == "" {
			opts.Delete = append(opts.Delete, k)
			continue
		}
		opts.Set[k] = v
	}
	data, id, err := c.load(path)
	if err != nil {
		return err
	}
	out, err := image.NewWithOptions(id, c.options()).Edit(data, opts)
	if err != nil {
		return err
	}
	dst, err := c.save(path, out)
	if err != nil {
		return err
	}
	p := core.NewPrinter(false, false)
	p.Writer = stdout
	p.PrintSuccess(fmt.Sprintf("%d set, %d deleted → %s", len(opts.Set), len(opts.Delete), dst))
	return nil
}

func cmdStrip(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("strip", &c, stderr)
	fs.StringVar(&c.out, "o", "", "output file (default: overwrite input)")
	gps := fs.Bool("gps", false, "remove only the GPS directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("strip: expected exactly one file")
	}
	path := fs.Arg(0)
	data, id, err := c.load(path)
	if err != nil {
		return err
	}
	out, err := image.NewWithOptions(id, c.options()).Strip(data, core.StripOptions{StripGPS: *gps})
	if err != nil {
		return err
	}
	dst, err := c.save(path, out)
	if err != nil {
		return err
	}
	p := core.NewPrinter(false, false)
	p.Writer = stdout
	if len(out) == len(data) {
		p.PrintInfo("no EXIF metadata to remove")
	}
	p.PrintSuccess(fmt.Sprintf("stripped %d bytes → %s", len(data)-len(out), dst))
	return nil
}

func cmdTags(stdout io.Writer) {
	for _, name := range exif.Names() {
		ti, _ := exif.Lookup(name)
		count := "n"
		if ti.Count != 0 {
			count = fmt.Sprint(ti.Count)
		}
		fmt.Fprintf(stdout, "  %-26s %-5s %-9s [%s]\n", name, ti.IFD, ti.Type.Name(), count)
	}
}
