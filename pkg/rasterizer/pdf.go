package rasterizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// PDF renders documents with poppler's pdftoppm.
type PDF struct {
	// Command overrides the pdftoppm executable.
	Command string
}

func (r *PDF) Rasterize(ctx context.Context, source []byte, dpi int) ([]Page, error) {
	command := r.Command

	if command == "" {
		command = "pdftoppm"
	}

	path, err := exec.LookPath(command)

	if err != nil {
		return nil, fmt.Errorf("%w: %s is not installed", ErrUnsupportedSource, command)
	}

	dir, err := os.MkdirTemp("", "glimpse-")

	if err != nil {
		return nil, err
	}

	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "source.pdf")

	if err := os.WriteFile(input, source, 0600); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, path, "-r", strconv.Itoa(clampDPI(dpi)), "-png", input, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %s", ErrCorruptSource, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(dir, "page-*.png"))

	if err != nil {
		return nil, err
	}

	// pdftoppm pads page numbers to equal width
	slices.Sort(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrCorruptSource)
	}

	images := &Images{}

	var pages []Page

	for _, f := range files {
		data, err := os.ReadFile(f)

		if err != nil {
			return nil, err
		}

		result, err := images.Rasterize(ctx, data, dpi)

		if err != nil {
			return nil, errors.Join(ErrCorruptSource, err)
		}

		pages = append(pages, result...)
	}

	return pages, nil
}
