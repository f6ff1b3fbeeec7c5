package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"fitcrop/crop"
)

type Operations = []Operation

type Operation struct {
	Crop *CropOperation
	Pick *PickOperation
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "crop":
		var c CropOperation
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal crop operation: %w", err)
		}
		o.Crop = &c
	case "pick":
		var pick PickOperation
		if err := json.Unmarshal(data, &pick); err != nil {
			return fmt.Errorf("failed to unmarshal pick operation: %w", err)
		}
		o.Pick = &pick
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Crop != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			CropOperation
		}{"crop", *o.Crop})
	case o.Pick != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			PickOperation
		}{"pick", *o.Pick})
	}
	return []byte("null"), nil
}

// CropOperation crops one file. The region is given either directly in pixel
// space, or as a rectangle over the image shown aspect-fit in Viewport.
type CropOperation struct {
	Filename string            `json:"filename"`
	Region   *crop.PixelRegion `json:"region,omitempty"`
	Viewport *crop.Size        `json:"viewport,omitempty"`
	Rect     *crop.Rect        `json:"rect,omitempty"`
	Format   crop.Format       `json:"format"`
}

type PickOperation struct {
	Filename string `json:"filename"`
}

type Cropper interface {
	Crop(ctx context.Context, r io.Reader, w io.Writer, region crop.PixelRegion, format crop.Format) error
}

// OperationExecutor runs crop and pick operations against files in BaseDir and
// writes results to OutputDir. It is also the image-processing collaborator of
// crop sessions.
type OperationExecutor struct {
	BaseDir   string
	OutputDir string
	Cropper   Cropper
	Metadata  crop.MetadataProvider
}

var _ crop.Processor = OperationExecutor{}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, op := range ops {
		op := op
		pooler.Go(func(ctx context.Context) error {
			if err := r.executeOperation(ctx, op); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Interface("op", op).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, op Operation) error {
	if op.Crop != nil {
		return r.executeCrop(ctx, *op.Crop)
	} else if op.Pick != nil {
		return r.executePick(ctx, *op.Pick)
	}
	return nil
}

func (r OperationExecutor) executeCrop(ctx context.Context, op CropOperation) error {
	region, err := r.resolveRegion(ctx, op)
	if err != nil {
		return err
	}
	if region.Empty() {
		return fmt.Errorf("%s: %w: %s", op.Filename, crop.ErrSelectionTooSmall, region)
	}
	_, err = r.Crop(ctx, op.Filename, region, op.Format)
	return err
}

func (r OperationExecutor) resolveRegion(ctx context.Context, op CropOperation) (crop.PixelRegion, error) {
	if op.Region != nil {
		return *op.Region, nil
	}
	if op.Rect == nil || op.Viewport == nil {
		return crop.PixelRegion{}, errors.New("crop operation needs a region, or a rect and a viewport")
	}
	if r.Metadata == nil {
		return crop.PixelRegion{}, errors.New("no metadata provider to map a viewport rect")
	}

	size, err := r.Metadata.IntrinsicSize(ctx, op.Filename)
	if err != nil {
		return crop.PixelRegion{}, fmt.Errorf("%w: %s: %w", crop.ErrImageLoad, op.Filename, err)
	}
	geom, err := crop.ComputeGeometry(*op.Viewport, size)
	if err != nil {
		return crop.PixelRegion{}, err
	}
	return crop.MapToPixels(*op.Rect, geom, size), nil
}

// Crop writes the cropped image to OutputDir and returns its name relative to
// OutputDir.
func (r OperationExecutor) Crop(ctx context.Context, filename string, region crop.PixelRegion, format crop.Format) (string, error) {
	log.Ctx(ctx).Info().Str("filename", filename).Stringer("region", region).Msg("cropping")
	sourcePath, err := resolvePath(r.BaseDir, filename)
	if err != nil {
		return "", err
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", sourcePath, err)
	}
	defer f.Close()

	var b bytes.Buffer
	if err := r.Cropper.Crop(ctx, f, &b, region, format); err != nil {
		return "", err
	}

	base := filepath.Base(sourcePath)
	newName := fmt.Sprintf("%s-%s.%s", strings.TrimSuffix(base, filepath.Ext(base)), region.ID(), format.Ext())
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	croppedPath := filepath.Join(r.OutputDir, newName)
	if err := writeFile(croppedPath, &b); err != nil {
		return "", fmt.Errorf("failed to write cropped file %s: %w", newName, err)
	}
	return newName, nil
}

// writeFile writes r to a new file at p. A failed Close is reported, and the
// partial file removed.
func writeFile(p string, r io.Reader) error {
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(p)
		return err
	}
	return nil
}

func (r OperationExecutor) executePick(ctx context.Context, op PickOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Msg("picking")
	sourcePath, err := resolvePath(r.BaseDir, op.Filename)
	if err != nil {
		return err
	}
	savePath, err := resolvePath(r.OutputDir, op.Filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", op.Filename, err)
	}
	if err := copyFile(sourcePath, savePath); err != nil {
		return fmt.Errorf("failed to pick file %s: %w", op.Filename, err)
	}
	return nil
}

func copyFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourcePath, err)
	}
	defer sourceFile.Close()

	if err := writeFile(destPath, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file from %s to %s: %w", sourcePath, destPath, err)
	}

	return nil
}
