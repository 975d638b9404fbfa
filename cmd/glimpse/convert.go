package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrianliechti/glimpse/pkg/assembler"
	"github.com/adrianliechti/glimpse/pkg/job"
	"github.com/adrianliechti/glimpse/pkg/orchestrator"
	"github.com/adrianliechti/glimpse/pkg/provider"
)

const imagesDir = "images"

func runConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("glimpse", flag.ContinueOnError)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: glimpse [flags] <file>\n       glimpse serve [flags]\n       glimpse health [flags]\n\n")
		fs.PrintDefaults()
	}

	format := fs.String("format", "", "output format: markdown, html, docx or json")
	mode := fs.String("mode", "", "recognition mode: "+strings.Join(modeNames(), ", "))
	term := fs.String("term", "", "term to locate in find mode")
	prompt := fs.String("prompt", "", "instruction for freeform mode")
	dpi := fs.Int("dpi", 0, "rasterization resolution for PDF pages")
	concurrency := fs.Int("concurrency", 0, "pages recognized in parallel")
	images := fs.Bool("images", true, "extract embedded images, overrides the configuration")
	captions := fs.Bool("captions", false, "ask for a caption below every figure, overrides the configuration")
	out := fs.String("out", ".", "output directory, - writes the document to stdout")

	cfg, err := loadConfig(fs, args)

	if err != nil {
		return err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	path := fs.Arg(0)

	options := cfg.JobOptions()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "images":
			options.ExtractImages = *images

		case "captions":
			options.Caption = *captions
		}
	})

	if *format != "" {
		if options.Format, err = assembler.ParseFormat(*format); err != nil {
			return err
		}
	}

	if *mode != "" {
		if options.Mode, err = provider.ParseMode(*mode); err != nil {
			return err
		}
	}

	if *dpi > 0 {
		options.DPI = *dpi
	}

	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	options.Term = *term
	options.Prompt = *prompt

	if _, err := provider.BuildPrompt(provider.Request{Mode: options.Mode, Term: options.Term, Prompt: options.Prompt}); err != nil {
		return err
	}

	source, err := os.ReadFile(path)

	if err != nil {
		return err
	}

	r, err := cfg.Recognizer()

	if err != nil {
		return err
	}

	name := filepath.Base(path)
	title := strings.TrimSuffix(name, filepath.Ext(name))

	assemble := []assembler.Option{
		assembler.WithTitle(title),
	}

	if *out != "-" {
		assemble = append(assemble, assembler.WithImageURL(func(img job.Image) string {
			return imagesDir + "/" + img.Name()
		}))
	}

	o := cfg.Orchestrator(r, orchestrator.WithAssemblerOptions(assemble...))

	j := job.New(name, options)

	artifact, err := o.Run(ctx, j, source)

	if err != nil {
		return err
	}

	if *out == "-" {
		_, err := os.Stdout.Write(artifact.Content)
		return err
	}

	return writeArtifact(*out, title, artifact)
}

func writeArtifact(dir, name string, artifact *assembler.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	target := filepath.Join(dir, name+artifact.Extension)

	if err := os.WriteFile(target, artifact.Content, 0o644); err != nil {
		return err
	}

	if len(artifact.Images) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, imagesDir), 0o755); err != nil {
			return err
		}

		for _, img := range artifact.Images {
			if err := os.WriteFile(filepath.Join(dir, imagesDir, img.Name()), img.Content, 0o644); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(os.Stderr, "wrote %s (%d images)\n", target, len(artifact.Images))

	return nil
}

func modeNames() []string {
	var names []string

	for _, m := range provider.Modes {
		names = append(names, string(m))
	}

	return names
}
