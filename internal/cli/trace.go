package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/collagist/collagist/backend-go/internal/asset"
	"github.com/collagist/collagist/backend-go/internal/silhouette"
)

const (
	formatPoints = "points" // SVG points attribute
	formatClip   = "clip"   // CSS polygon() argument list
	formatSVG    = "svg"    // standalone outline document
	formatJSON   = "json"   // full silhouette record
)

type traceOpts struct {
	format    string
	threshold uint8
	output    string
}

func newTraceCmd() *cobra.Command {
	opts := traceOpts{format: formatPoints, threshold: silhouette.DefaultThreshold}

	cmd := &cobra.Command{
		Use:   "trace [image]",
		Short: "Trace the silhouette of an image",
		Long: `Trace the outline of the opaque pixels of an image.

Pixels with alpha strictly greater than --threshold count as opaque.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: points, clip, svg or json")
	cmd.Flags().Uint8VarP(&opts.threshold, "threshold", "t", opts.threshold, "alpha cutoff (0-255)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runTrace(cmd *cobra.Command, file string, opts traceOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	switch opts.format {
	case formatPoints, formatClip, formatSVG, formatJSON:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	decoder := asset.NewFileDecoder(os.DirFS(filepath.Dir(abs)))
	cache := silhouette.NewCache(decoder,
		silhouette.WithThreshold(opts.threshold),
		silhouette.WithLogger(slogFromContext(ctx)))

	prog := newProgress(logger)
	data, err := cache.Get(ctx, filepath.Base(abs))
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Traced %s: %dx%d, %d vertices", filepath.Base(abs), data.Width, data.Height, len(data.Boundary)))

	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	return writeSilhouette(out, data, opts.format)
}

func writeSilhouette(w io.Writer, data *silhouette.Data, format string) error {
	switch format {
	case formatClip:
		_, err := fmt.Fprintf(w, "polygon(%s)\n", data.ClipPath())
		return err
	case formatSVG:
		svg, err := data.SVG()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, svg)
		return err
	case formatJSON:
		points := make([][2]int, len(data.Boundary))
		for i, p := range data.Boundary {
			points[i] = [2]int{p.X, p.Y}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"width":    data.Width,
			"height":   data.Height,
			"points":   points,
			"clipPath": data.ClipPath(),
		})
	default:
		_, err := fmt.Fprintln(w, data.PolygonPoints())
		return err
	}
}
