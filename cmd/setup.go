package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/visualmatch/internal/config"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/engine"
	"github.com/kozaktomas/visualmatch/internal/extractor"
	"github.com/kozaktomas/visualmatch/internal/logger"
)

// newLogger builds the process logger from LOG_ENV and LOG_LEVEL.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// openEngines loads configuration and opens the engines of every kind.
func openEngines(ctx context.Context) (*config.Config, *zap.Logger, *engine.Set, error) {
	cfg := config.Load()
	l, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engines, err := engine.Open(ctx, cfg, l)
	if err != nil {
		_ = l.Sync()
		return nil, nil, nil, err
	}
	return cfg, l, engines, nil
}

// selectEngine returns the engine named by the --kind flag.
func selectEngine(cmd *cobra.Command, engines *engine.Set) (*engine.Engine, error) {
	kind, err := cmd.Flags().GetString("kind")
	if err != nil {
		return nil, fmt.Errorf("reading --kind: %w", err)
	}
	e, ok := engines.Get(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q (available: %v)", kind, engines.Kinds())
	}
	return e, nil
}

// closeEngines releases the engines and flushes the logger.
func closeEngines(engines *engine.Set, l *zap.Logger) {
	if err := engines.Close(); err != nil {
		l.Warn("failed to close engines", zap.Error(err))
	}
	_ = l.Sync()
}

// addImageFlags registers the --url and --file flags that select a query image.
func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Image URL the extractor downloads")
	cmd.Flags().String("file", "", "Local image file sent to the extractor")
	cmd.MarkFlagsOneRequired("url", "file")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
}

// imageRefFromFlags reads the image selected by --url or --file.
func imageRefFromFlags(cmd *cobra.Command) (extractor.ImageRef, error) {
	if path := mustGetString(cmd, "file"); path != "" {
		data, err := readImageFile(path)
		if err != nil {
			return extractor.ImageRef{}, err
		}
		return extractor.ImageRef{Data: data}, nil
	}
	return extractor.ImageRef{URL: mustGetString(cmd, "url")}, nil
}

// readImageFile reads a local image, refusing files above the upload limit.
func readImageFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if info.Size() > constants.MaxImageSize {
		return nil, fmt.Errorf("image %s is larger than %d bytes", path, constants.MaxImageSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}
