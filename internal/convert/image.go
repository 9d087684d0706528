package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/bmp"

	// Decode-only codecs registered for image.Decode.
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// decodeFlattened decodes an image file and composites it over a white
// background. Formats with alpha (png, webp) would otherwise come out with
// black backgrounds when re-encoded as JPEG.
func decodeFlattened(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input read failed: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	bounds := src.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, src, bounds.Min, draw.Over)
	return flat, nil
}

func encodeImage(img *image.RGBA, outputPath, format string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("output write failed: %w", err)
	}
	defer f.Close()

	switch format {
	case "jpg", "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	case "png":
		err = png.Encode(f, img)
	case "bmp":
		err = bmp.Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, nil)
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("image encode failed: %w", err)
	}
	return nil
}

// convertImage re-encodes an image file into the target format.
func convertImage(inputPath, outputPath, target string) error {
	img, err := decodeFlattened(inputPath)
	if err != nil {
		return err
	}
	return encodeImage(img, outputPath, target)
}

// imageToPDF wraps the image in a single A4 page, scaled to fit the content
// area while preserving aspect ratio. The image is re-encoded as PNG first so
// sources fpdf cannot read natively (bmp, webp, tiff) work too.
func imageToPDF(inputPath, outputPath string) error {
	img, err := decodeFlattened(inputPath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("image encode failed: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.AddPage()

	doc.RegisterImageOptionsReader("staged", fpdf.ImageOptions{ImageType: "PNG"}, &buf)
	if doc.Err() {
		return fmt.Errorf("render failed: %v", doc.Error())
	}

	pageW, pageH := doc.GetPageSize()
	maxW := pageW - 2*pdfMargin
	maxH := pageH - 2*pdfMargin

	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}

	doc.ImageOptions("staged", pdfMargin, pdfMargin, w*scale, h*scale, false,
		fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	if err := doc.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
