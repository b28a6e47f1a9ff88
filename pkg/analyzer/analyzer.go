package analyzer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrInvalidDataURI is returned when a preview string is not a base64 data URI
	ErrInvalidDataURI = errors.New("invalid data URI")
	// ErrNotAnImage is returned when the payload's media type is not image/*
	ErrNotAnImage = errors.New("payload is not an image")
	// ErrUnsupportedFormat is returned for decodable images in a disallowed format
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is returned when an upload exceeds the configured byte limit
	ErrTooLarge = errors.New("image too large")
)

// ImageAnalyzer handles image ingestion: decoding uploads and building previews
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for image ingestion
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxBytes         int64
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
			MinImageSize:     1,
			MaxBytes:         10 << 20,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Upload is a raw image payload together with its preview encoding
type Upload struct {
	Data      []byte
	MediaType string
	Preview   string
}

// NewUpload reads an image blob and builds its data URI preview.
// An empty mediaType is sniffed from the content.
func (a *ImageAnalyzer) NewUpload(r io.Reader, mediaType string) (*Upload, error) {
	limit := a.config.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrNotAnImage)
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0]))
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotAnImage, mediaType)
	}

	return &Upload{
		Data:      data,
		MediaType: mediaType,
		Preview:   EncodeDataURI(mediaType, data),
	}, nil
}

// LoadUpload reads an image file into an Upload
func (a *ImageAnalyzer) LoadUpload(filepath string) (*Upload, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return a.NewUpload(file, "")
}

// LoadUploadFromURL downloads an image into an Upload
func (a *ImageAnalyzer) LoadUploadFromURL(imageURL string) (*Upload, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Dental-Analyzer/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	return a.NewUpload(resp.Body, resp.Header.Get("Content-Type"))
}

// LoadUploadSmart loads an upload from either a file path or URL
func (a *ImageAnalyzer) LoadUploadSmart(source string) (*Upload, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return a.LoadUploadFromURL(source)
	}
	return a.LoadUpload(source)
}

// DecodeDataURI decodes a base64 data URI into an image
func (a *ImageAnalyzer) DecodeDataURI(dataURI string) (image.Image, error) {
	mediaType, data, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotAnImage, mediaType)
	}
	return a.decodeBytes(data)
}

// decodeBytes decodes with the registered decoders, falling back to chai2010/webp
func (a *ImageAnalyzer) decodeBytes(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		img, format = wimg, "webp"
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, err
	}

	return img, nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
		// "jpg" in config files means the "jpeg" decoder
		if strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg") {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	minSize := a.config.MinImageSize
	if minSize < 1 {
		minSize = 1
	}
	if bounds.Dx() < minSize || bounds.Dy() < minSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), minSize)
	}
	return nil
}

// ParseDataURI splits a base64 data URI into its media type and payload
func ParseDataURI(dataURI string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mediaType, data, nil
}

// EncodeDataURI builds a base64 data URI for the payload
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
