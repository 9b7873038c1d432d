package postgate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	maxUploadSize = 10 << 20 // 10MB
	imagesDir     = "images"
)

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file provided")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "File too large (max 10MB)")
	}
	date, err := a.requestDate(c.FormValue("date"), "")
	if err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadSize {
		return echo.NewHTTPError(http.StatusBadRequest, "File too large (max 10MB)")
	}

	filename := imageFilename(date, a.now().UnixMilli(), file.Filename)
	res, err := a.Content.WriteFile(c.Request().Context(), imagesDir+"/"+filename,
		data, "Upload image: "+filename, "")
	if err != nil {
		return err
	}
	a.Log.Info().Str("email", AuthEmail(c)).Str("filename", filename).Int("bytes", len(data)).Msg("image uploaded")

	resp := imageResponse{
		Success: true,
		URL:     "../" + imagesDir + "/" + filename,
	}
	if res.Content != nil {
		resp.DownloadURL = res.Content.DownloadURL
	}
	// Dimensions are informational; non-image uploads are stored as-is.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		resp.Width = cfg.Width
		resp.Height = cfg.Height
	}
	return c.JSON(http.StatusOK, resp)
}

// imageFilename returns "{date}-{millis}.{ext}" using the extension of the
// uploaded file's name, or "bin" when it has none.
func imageFilename(date string, millis int64, uploaded string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filepath.Base(uploaded)), "."))
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		ext = "bin"
	}
	return fmt.Sprintf("%s-%d.%s", date, millis, ext)
}
