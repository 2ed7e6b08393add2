package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxImageDimension bounds the longer edge of uploaded product images.
	MaxImageDimension = 1600
	uploadQuality     = 85
)

// PrepareImage decodes an image, fits it inside MaxImageDimension and
// re-encodes it as JPEG. Smaller images keep their size.
func PrepareImage(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > MaxImageDimension || b.Dy() > MaxImageDimension {
		img = imaging.Fit(img, MaxImageDimension, MaxImageDimension, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(uploadQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadProductImage downsizes the image and posts it to the catalog upload
// endpoint with token as bearer. It returns the stored image reference.
func (c *Client) UploadProductImage(ctx context.Context, token, filename string, r io.Reader) (ref string, err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.upload_image")
	defer func() { done(err) }()
	data, err := PrepareImage(r)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", jpegName(filename))
	if err != nil {
		return "", err
	}
	if _, err = part.Write(data); err != nil {
		return "", err
	}
	if err = mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/products/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err = c.send(req, token, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func jpegName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "upload"
	}
	return base + ".jpg"
}
