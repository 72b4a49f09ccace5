// Package qrdecode rasterizes page 1 of a scanned PDF with poppler and
// decodes the QR symbols it carries. Zero symbols is a normal empty result;
// an unreadable document is an error.
package qrdecode

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi/qrcode"

	"scanrouter/internal/services"
)

// Decoder extracts QR payload strings from page 1 of a document.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures the poppler decoder.
type Option func(*PopplerDecoder)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(d *PopplerDecoder) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// PopplerDecoder renders page 1 via pdftoppm and reads QR symbols from the
// resulting image.
type PopplerDecoder struct {
	binary string
	dpi    int
	exec   Executor
}

// New constructs a poppler-backed decoder.
func New(binary string, dpi int, opts ...Option) (*PopplerDecoder, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("pdftoppm binary required")
	}
	if dpi <= 0 {
		dpi = 200
	}
	decoder := &PopplerDecoder{
		binary: binary,
		dpi:    dpi,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(decoder)
	}
	return decoder, nil
}

// Decode returns every QR payload found on page 1, sorted for determinism.
// A document whose first page rasterizes but carries no symbols yields an
// empty slice and a nil error.
func (d *PopplerDecoder) Decode(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrDecode, "", "decode", "unreadable document", err)
	}

	workDir, err := os.MkdirTemp("", "scanrouter-raster-")
	if err != nil {
		return nil, fmt.Errorf("create raster workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	prefix := filepath.Join(workDir, "page1")
	args := []string{
		"-png",
		"-r", strconv.Itoa(d.dpi),
		"-f", "1",
		"-l", "1",
		"-singlefile",
		path,
		prefix,
	}
	if err := d.exec.Run(ctx, d.binary, args); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "", "decode", "rasterization timed out", err)
		}
		return nil, services.Wrap(services.ErrDecode, "", "decode", "unreadable document: page 1 rasterization failed", err)
	}

	img, err := loadImage(prefix + ".png")
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "", "decode", "unreadable document: raster output missing", err)
	}

	return decodeSymbols(img)
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode raster image: %w", err)
	}
	return img, nil
}

func decodeSymbols(img image.Image) ([]string, error) {
	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "", "decode", "binarize raster image", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	results, err := qrcode.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints)
	if err != nil {
		if _, ok := err.(gozxing.NotFoundException); ok {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrDecode, "", "decode", "read QR symbols", err)
	}

	// Every decoded symbol is reported, duplicates included. A page
	// carrying two copies of the same code is still ambiguous input and
	// the caller rejects any multi-symbol page.
	payloads := make([]string, 0, len(results))
	for _, result := range results {
		text := strings.TrimSpace(result.GetText())
		if text == "" {
			continue
		}
		payloads = append(payloads, text)
	}
	sort.Strings(payloads)
	return payloads, nil
}
