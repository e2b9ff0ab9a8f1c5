// Package evaluate runs one super-resolution evaluation: it degrades an
// image, upscales it with bicubic interpolation and with a model, reports
// PSNR and timings, and writes the intermediate images next to the input.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/lon9/acnet-go/acnet"
	"github.com/lon9/acnet-go/imgproc"
	"github.com/lon9/acnet-go/metrics"
)

// defaultJPEGQuality is used for full size outputs that happen to be JPEG.
const defaultJPEGQuality = 75

// Config holds the parameters of an evaluation run.
type Config struct {
	ImageFile string
	Scale     int
	Compress  bool
	Quality   int
	Crop      bool
	Top       int
	Left      int
	SideLen   int
	Resampler string
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	var errs []error
	if c.ImageFile == "" {
		errs = append(errs, errors.New("image file is required"))
	}
	if c.Scale < 1 {
		errs = append(errs, fmt.Errorf("scale must be positive, got %d", c.Scale))
	}
	if c.Compress && (c.Quality < 1 || c.Quality > 100) {
		errs = append(errs, fmt.Errorf("quality must be in [1, 100], got %d", c.Quality))
	}
	if c.Crop && c.SideLen < 1 {
		errs = append(errs, fmt.Errorf("side length must be positive, got %d", c.SideLen))
	}
	return errors.Join(errs...)
}

// Artifact is an image written during a run.
type Artifact struct {
	Kind   string
	Path   string
	Width  int
	Height int
	Bytes  int64
}

// Report summarises a run.
type Report struct {
	BicubicPSNR float64
	PSNR        float64
	BicubicTime time.Duration
	ModelTime   time.Duration
	Artifacts   []Artifact
}

// Artifact returns the first artifact of the given kind.
func (r *Report) Artifact(kind string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Table renders the artifacts and metrics as a table.
func (r *Report) Table(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Path", "Size", "Bytes"})
	for _, a := range r.Artifacts {
		table.Append([]string{a.Kind, a.Path, fmt.Sprintf("%dx%d", a.Width, a.Height), strconv.FormatInt(a.Bytes, 10)})
	}
	table.SetFooter([]string{"", "PSNR bicubic / model", fmt.Sprintf("%.2f", r.BicubicPSNR), fmt.Sprintf("%.2f", r.PSNR)})
	table.Render()
}

// Artifact kinds.
const (
	KindOriginThumbnail  = "origin-thumbnail"
	KindSource           = "source"
	KindSourceThumbnail  = "source-thumbnail"
	KindBicubic          = "bicubic"
	KindBicubicThumbnail = "bicubic-thumbnail"
	KindModel            = "model"
	KindModelThumbnail   = "model-thumbnail"
)

type run struct {
	cfg    Config
	names  names
	pipe   *imgproc.Pipeline
	logger *slog.Logger
	report *Report
}

// Run evaluates up on cfg.ImageFile. Metric and timing lines are written to
// stdout as they become available.
func Run(ctx context.Context, cfg Config, up acnet.Upscaler, stdout io.Writer, logger *slog.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if up.Scale() != cfg.Scale {
		return nil, fmt.Errorf("model upscales x%d, run asks for x%d", up.Scale(), cfg.Scale)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pipe, err := imgproc.NewPipeline(cfg.Resampler)
	if err != nil {
		return nil, err
	}
	r := &run{
		cfg:    cfg,
		names:  newNames(cfg.ImageFile, cfg.Scale, cfg.Quality),
		pipe:   pipe,
		logger: logger,
		report: &Report{},
	}
	if err := r.exec(ctx, up, stdout); err != nil {
		return nil, err
	}
	return r.report, nil
}

func (r *run) exec(ctx context.Context, up acnet.Upscaler, stdout io.Writer) error {
	s := r.cfg.Scale

	img, err := imgproc.Open(r.cfg.ImageFile)
	if err != nil {
		return err
	}
	hr, err := r.pipe.ModCrop(img, s)
	if err != nil {
		return err
	}
	if err := r.thumbnail(hr, KindOriginThumbnail, r.names.originThumbnail(), 1, defaultJPEGQuality); err != nil {
		return err
	}

	lr, err := r.pipe.Downscale(hr, s)
	if err != nil {
		return err
	}
	if r.cfg.Compress {
		if lr, err = imgproc.Compress(lr, r.cfg.Quality); err != nil {
			return err
		}
	}
	if err := r.save(lr, KindSource, r.names.source(), 100); err != nil {
		return err
	}
	if err := r.thumbnail(lr, KindSourceThumbnail, r.names.sourceThumbnail(), s, 100); err != nil {
		return err
	}

	start := time.Now()
	bicubic, err := r.pipe.Upscale(lr, s)
	if err != nil {
		return err
	}
	r.report.BicubicTime = time.Since(start)
	fmt.Fprintf(stdout, "Bicubic_Time: %v\n", r.report.BicubicTime)
	if err := r.save(bicubic, KindBicubic, r.names.bicubic(), defaultJPEGQuality); err != nil {
		return err
	}
	if err := r.thumbnail(bicubic, KindBicubicThumbnail, r.names.bicubicThumbnail(), 1, defaultJPEGQuality); err != nil {
		return err
	}

	lrY := imgproc.Decompose(lr).Luma()
	hrY := imgproc.Decompose(hr).Luma()
	bicubicPlanes := imgproc.Decompose(bicubic)
	if r.report.BicubicPSNR, err = metrics.PSNR(hrY, bicubicPlanes.Luma()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "PSNR_bicubic: %.2f\n", r.report.BicubicPSNR)

	start = time.Now()
	pred, err := up.Upscale(ctx, lrY)
	if err != nil {
		return fmt.Errorf("model forward: %w", err)
	}
	pred.Clamp(0, 1)
	r.report.ModelTime = time.Since(start)
	fmt.Fprintf(stdout, "Time: %v\n", r.report.ModelTime)

	if r.report.PSNR, err = metrics.PSNR(hrY, pred); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "PSNR: %.2f\n", r.report.PSNR)

	out, err := bicubicPlanes.Compose(pred)
	if err != nil {
		return err
	}
	if err := r.save(out, KindModel, r.names.model(), defaultJPEGQuality); err != nil {
		return err
	}
	return r.thumbnail(out, KindModelThumbnail, r.names.modelThumbnail(), 1, defaultJPEGQuality)
}

// thumbnail saves the crop square when cropping is enabled. div shrinks the
// square for images that are smaller than the reference by that factor.
func (r *run) thumbnail(img image.Image, kind, path string, div, quality int) error {
	if !r.cfg.Crop {
		return nil
	}
	side := max(r.cfg.SideLen/div, 1)
	thumb, err := imgproc.Crop(img, r.cfg.Left/div, r.cfg.Top/div, side)
	if err != nil {
		return err
	}
	return r.save(thumb, kind, path, quality)
}

func (r *run) save(img image.Image, kind, path string, quality int) error {
	if err := imgproc.Save(img, path, quality); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	b := img.Bounds()
	r.report.Artifacts = append(r.report.Artifacts, Artifact{
		Kind:   kind,
		Path:   path,
		Width:  b.Dx(),
		Height: b.Dy(),
		Bytes:  info.Size(),
	})
	r.logger.Debug("saved", "kind", kind, "path", path, "bytes", info.Size())
	return nil
}
