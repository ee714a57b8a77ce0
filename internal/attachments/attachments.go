package attachments

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/ZXMushroom63/adschat-server/internal/models"
)

var (
	ErrInvalidImage = errors.New("uploaded file is not a valid image")
	ErrTooLarge     = errors.New("uploaded file is too large")
)

const thumbnailMaxSize = 512

var mutex sync.Mutex

var sugar *zap.SugaredLogger
var baseDir string
var maxBytes int64

func Setup(_sugar *zap.SugaredLogger, _baseDir string, _maxBytes int64) {
	sugar = _sugar
	baseDir = _baseDir
	maxBytes = _maxBytes
}

// Ingest consumes one uploaded file, verifies it decodes as an image and
// stores it under a content-hash name inside the channel's directory. A webp
// thumbnail capped at 512px is written next to it. On any failure nothing is
// left on disk.
func Ingest(r io.Reader, filename string, channelID int64) (models.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return models.Attachment{}, err
	}
	if int64(len(data)) > maxBytes {
		return models.Attachment{}, ErrTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		sugar.Debugf("Rejecting upload [%s]: %v", filename, err)
		return models.Attachment{}, ErrInvalidImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Attachment{}, ErrInvalidImage
	}

	hash := sha256.Sum256(data)
	name := hex.EncodeToString(hash[:])

	ext := "." + format
	if format == "jpeg" {
		ext = ".jpg"
	}

	folderPath := filepath.Join(baseDir, fmt.Sprint(channelID))
	fullPath := filepath.Join(folderPath, name+ext)
	thumbPath := filepath.Join(folderPath, name+".thumb.webp")

	thumb := resize.Thumbnail(thumbnailMaxSize, thumbnailMaxSize, img, resize.Lanczos3)

	var thumbBuf bytes.Buffer
	err = webp.Encode(&thumbBuf, thumb, &webp.Options{Quality: 80})
	if err != nil {
		return models.Attachment{}, err
	}

	mutex.Lock()
	defer mutex.Unlock()

	err = os.MkdirAll(folderPath, os.ModePerm)
	if err != nil {
		return models.Attachment{}, err
	}

	err = os.WriteFile(fullPath, data, 0644)
	if err != nil {
		return models.Attachment{}, err
	}

	err = os.WriteFile(thumbPath, thumbBuf.Bytes(), 0644)
	if err != nil {
		// don't leave the original behind without its thumbnail
		os.Remove(fullPath)
		return models.Attachment{}, err
	}

	sugar.Debugf("Stored attachment [%s] for channel ID [%d] (%dx%d)", name+ext, channelID, cfg.Width, cfg.Height)

	return models.Attachment{
		Path:   filepath.ToSlash(filepath.Join(fmt.Sprint(channelID), name+ext)),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
