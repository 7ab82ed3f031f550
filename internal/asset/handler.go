// Package asset stores the bitmaps behind image elements. An upload returns
// the src and natural size an image element is created with.
package asset

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sketchroom/sketchroom/internal/auth"
	"github.com/sketchroom/sketchroom/internal/typeid"
)

const DefaultMaxUploadSize = 10 << 20

// ImageSource maps onto the src, originalWidth and originalHeight fields of
// an image element.
type ImageSource struct {
	ID             string `json:"id"`
	Src            string `json:"src"`
	OriginalWidth  int    `json:"originalWidth"`
	OriginalHeight int    `json:"originalHeight"`
	UploadedBy     string `json:"uploadedBy,omitempty"`
}

type Handler struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

// NewHandler stores uploads in dir and reports them under urlPrefix
// (for example "/images/").
func NewHandler(dir, urlPrefix string, maxSize int64) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Handler{dir: dir, urlPrefix: urlPrefix, maxSize: maxSize}, nil
}

// Upload handles a multipart form with a "file" field holding a PNG or JPEG.
// The image is re-encoded as PNG and attributed to the authenticated user,
// if any.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large (max %d bytes)", h.maxSize))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		writeError(w, http.StatusUnsupportedMediaType, "only PNG and JPEG images are supported")
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image")
		return
	}

	id := typeid.NewImageID()
	filename := id + ".png"
	if err := h.save(filename, img); err != nil {
		slog.Error("save image", "error", err, "file", filename)
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	bounds := img.Bounds()
	uploader := auth.UserIDFromContext(r.Context())
	slog.Info("image uploaded", "id", id, "user", uploader, "name", header.Filename, "width", bounds.Dx(), "height", bounds.Dy())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ImageSource{
		ID:             id,
		Src:            h.urlPrefix + filename,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		UploadedBy:     uploader,
	})
}

func (h *Handler) save(filename string, img image.Image) error {
	path := filepath.Join(h.dir, filename)
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// Serve returns a handler for stored images. Ids are unique, so responses are
// cached as immutable.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix(h.urlPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
