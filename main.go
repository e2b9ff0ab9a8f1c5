package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/jessevdk/go-flags"

	"github.com/lon9/acnet-go/acnet"
	"github.com/lon9/acnet-go/evaluate"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) {
			// go-flags already printed it.
			if ferr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("evaluation failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func parseOptions(args []string) (*Options, error) {
	var pre configOption
	if _, err := flags.NewParser(&pre, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}

	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "acnet-go"
	parser.Usage = "-w[--weights-file] <weights-path> -i[--image-file] <image-path> [-s[--scale] <factor>] [--compress] [--crop]"
	if pre.Config != "" {
		if err := flags.NewIniParser(parser).ParseFile(pre.Config); err != nil {
			return nil, fmt.Errorf("read config %s: %w", pre.Config, err)
		}
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if opts.ImageFile == "" {
		return nil, errors.New("--image-file is required")
	}
	switch opts.Backend {
	case "native":
		if opts.WeightsFile == "" {
			return nil, errors.New("--weights-file is required")
		}
		if opts.Device == string(acnet.DeviceCUDA) {
			return nil, errors.New("--device=cuda requires --backend=onnx")
		}
	case "onnx":
		if opts.ONNXModel == "" {
			return nil, errors.New("--onnx-model is required with --backend=onnx")
		}
	}
	return opts, nil
}

func run(ctx context.Context, opts *Options, logger *slog.Logger) error {
	cpus := runtime.NumCPU()
	if opts.CPU != 0 {
		if opts.CPU > cpus {
			runtime.GOMAXPROCS(cpus)
		} else {
			runtime.GOMAXPROCS(opts.CPU)
		}
	}

	up, closeFn, err := newUpscaler(opts, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := evaluate.Run(ctx, evaluate.Config{
		ImageFile: opts.ImageFile,
		Scale:     opts.Scale,
		Compress:  opts.Compress,
		Quality:   opts.Quality,
		Crop:      opts.Crop,
		Top:       opts.Top,
		Left:      opts.Left,
		SideLen:   opts.SideLen,
		Resampler: opts.Resampler,
	}, up, os.Stdout, logger)
	if err != nil {
		return err
	}
	if opts.Summary {
		report.Table(os.Stdout)
	}
	return nil
}

func newUpscaler(opts *Options, logger *slog.Logger) (acnet.Upscaler, func(), error) {
	if opts.Backend == "onnx" {
		s, err := acnet.NewONNXSession(opts.ONNXModel, opts.ONNXLib, opts.Scale, acnet.Device(opts.Device), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing onnx session", "error", err)
			}
		}, nil
	}

	m, err := acnet.New(acnet.Config{Scale: opts.Scale, Features: opts.Features, Depth: opts.Depth})
	if err != nil {
		return nil, nil, err
	}
	m.Workers = runtime.GOMAXPROCS(0)
	m.Logger = logger

	sd, err := acnet.LoadStateDict(opts.WeightsFile)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Load(sd); err != nil {
		return nil, nil, fmt.Errorf("load weights %s: %w", opts.WeightsFile, err)
	}
	logger.Debug("weights loaded", "path", opts.WeightsFile, "tensors", len(sd))

	if opts.ExportWeights != "" {
		if err := acnet.WriteSafetensors(opts.ExportWeights, m.StateDict()); err != nil {
			return nil, nil, fmt.Errorf("export weights: %w", err)
		}
		logger.Info("weights exported", "path", opts.ExportWeights)
	}
	if !opts.NoFuse {
		m.Fuse()
	}
	return m, func() {}, nil
}
