package qrdecode_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"scanrouter/internal/qrdecode"
	"scanrouter/internal/services"
)

// stubRasterizer stands in for pdftoppm: it writes a prepared PNG to the
// output prefix the decoder asks for.
type stubRasterizer struct {
	src string
	err error
}

func (s stubRasterizer) Run(_ context.Context, _ string, args []string) error {
	if s.err != nil {
		return s.err
	}
	data, err := os.ReadFile(s.src)
	if err != nil {
		return err
	}
	prefix := args[len(args)-1]
	return os.WriteFile(prefix+".png", data, 0o644)
}

func qrMatrix(t *testing.T, payload string) *gozxing.BitMatrix {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	if err != nil {
		t.Fatalf("encode QR: %v", err)
	}
	return matrix
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}

func scanFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		t.Fatalf("write scan fixture: %v", err)
	}
	return path
}

func newDecoder(t *testing.T, exec qrdecode.Executor) *qrdecode.PopplerDecoder {
	t.Helper()
	decoder, err := qrdecode.New("pdftoppm", 200, qrdecode.WithExecutor(exec))
	if err != nil {
		t.Fatalf("qrdecode.New: %v", err)
	}
	return decoder
}

func TestDecodeSinglePayload(t *testing.T) {
	const payload = "PRINT_ID=QS_2025_03421"
	raster := writePNG(t, qrMatrix(t, payload))
	decoder := newDecoder(t, stubRasterizer{src: raster})

	payloads, err := decoder.Decode(context.Background(), scanFixture(t))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(payloads) != 1 || payloads[0] != payload {
		t.Fatalf("unexpected payloads: %v", payloads)
	}
}

func TestDecodeBlankPageYieldsEmptyResult(t *testing.T) {
	blank := image.NewRGBA(image.Rect(0, 0, 320, 320))
	draw.Draw(blank, blank.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	raster := writePNG(t, blank)
	decoder := newDecoder(t, stubRasterizer{src: raster})

	payloads, err := decoder.Decode(context.Background(), scanFixture(t))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(payloads) != 0 {
		t.Fatalf("expected no payloads, got %v", payloads)
	}
}

func TestDecodeTwoSymbols(t *testing.T) {
	left := qrMatrix(t, "PRINT_ID=QS_2025_00001")
	right := qrMatrix(t, "PRINT_ID=QS_2025_00002")

	page := image.NewRGBA(image.Rect(0, 0, 640, 320))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(page, image.Rect(16, 32, 272, 288), left, image.Point{}, draw.Src)
	draw.Draw(page, image.Rect(368, 32, 624, 288), right, image.Point{}, draw.Src)

	decoder := newDecoder(t, stubRasterizer{src: writePNG(t, page)})
	payloads, err := decoder.Decode(context.Background(), scanFixture(t))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %v", payloads)
	}
	if payloads[0] != "PRINT_ID=QS_2025_00001" || payloads[1] != "PRINT_ID=QS_2025_00002" {
		t.Fatalf("unexpected payload order: %v", payloads)
	}
}

func TestDecodeDuplicateSymbolsKeptSeparate(t *testing.T) {
	const payload = "PRINT_ID=QS_2025_00003"
	symbol := qrMatrix(t, payload)

	page := image.NewRGBA(image.Rect(0, 0, 640, 320))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(page, image.Rect(16, 32, 272, 288), symbol, image.Point{}, draw.Src)
	draw.Draw(page, image.Rect(368, 32, 624, 288), symbol, image.Point{}, draw.Src)

	decoder := newDecoder(t, stubRasterizer{src: writePNG(t, page)})
	payloads, err := decoder.Decode(context.Background(), scanFixture(t))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(payloads) != 2 || payloads[0] != payload || payloads[1] != payload {
		t.Fatalf("expected the duplicated symbol twice, got %v", payloads)
	}
}

func TestDecodeRasterizerFailure(t *testing.T) {
	decoder := newDecoder(t, stubRasterizer{err: errors.New("pdftoppm: exit status 1")})

	_, err := decoder.Decode(context.Background(), scanFixture(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("error not tagged ErrDecode: %v", err)
	}
}

func TestDecodeMissingDocument(t *testing.T) {
	decoder := newDecoder(t, stubRasterizer{})

	_, err := decoder.Decode(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("error not tagged ErrDecode: %v", err)
	}
}
