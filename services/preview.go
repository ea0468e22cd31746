// services/preview.go
package services

import (
	"context"
	"encoding/base64"
	"mime"
	"path"
	"strings"

	"data-bounty-system/models"
	"data-bounty-system/oracle"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const previewTextLimit = 500

// PreviewUploader puts preview bytes somewhere public and returns the URL.
// *utils.R2Uploader satisfies it.
type PreviewUploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// PreviewBuilder turns the first file of a batch into the submission's
// DataPreview. Images go to object storage when an uploader is configured and
// are inlined as data URLs otherwise.
type PreviewBuilder struct {
	uploader PreviewUploader
	log      *zap.Logger
}

func NewPreviewBuilder(uploader PreviewUploader, log *zap.Logger) *PreviewBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &PreviewBuilder{uploader: uploader, log: log}
}

func (p *PreviewBuilder) Build(ctx context.Context, bounty *models.Bounty, file oracle.File) (string, models.DataType) {
	if !file.IsImage() {
		return textPreview(string(file.Data)), models.DataTypeText
	}

	if p.uploader != nil && bounty != nil {
		key := PreviewKey(bounty.Title, file)
		url, err := p.uploader.Upload(ctx, key, file.MimeType, file.Data)
		if err == nil {
			return url, models.DataTypeImage
		}
		p.log.Warn("preview upload failed, inlining image",
			zap.String("bounty_id", bounty.ID),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return dataURL(file), models.DataTypeImage
}

// PreviewKey is previews/<bounty-slug>/<uuid><ext>.
func PreviewKey(bountyTitle string, file oracle.File) string {
	dir := slug.Make(bountyTitle)
	if dir == "" {
		dir = "untitled"
	}
	return "previews/" + dir + "/" + uuid.NewString() + previewExt(file)
}

func previewExt(file oracle.File) string {
	if ext := strings.ToLower(path.Ext(file.Name)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(file.MimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func dataURL(file oracle.File) string {
	return "data:" + file.MimeType + ";base64," + base64.StdEncoding.EncodeToString(file.Data)
}

func textPreview(s string) string {
	r := []rune(s)
	if len(r) > previewTextLimit {
		r = r[:previewTextLimit]
	}
	return string(r) + "..."
}
