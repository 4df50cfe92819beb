package conversion

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-playground/validator/v10"
	_ "golang.org/x/image/webp"

	"illustrator/internal/domain"
)

// Upload is one submitted image.
type Upload struct {
	Filename string
	Data     []byte `validate:"required"`
}

// SubmitRequest is the input of Service.Submit.
type SubmitRequest struct {
	OwnerID       string         `validate:"required,max=128"`
	Authenticated bool
	Kind          domain.JobKind `validate:"omitempty,oneof=photo video"`
	StyleID       string         `validate:"required,max=64"`
	Images        []Upload       `validate:"required,min=1,dive"`
	Scene         *domain.SceneAnalysis
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodedImage is an accepted upload with its detected MIME type.
type decodedImage struct {
	data []byte
	mime string
}

func (s *Service) validateRequest(req SubmitRequest) ([]decodedImage, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %s", domain.ErrInvalidInput, verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if s.cfg.MaxImagesPerJob > 0 && len(req.Images) > s.cfg.MaxImagesPerJob {
		return nil, fmt.Errorf("%w: at most %d images per job", domain.ErrInvalidInput, s.cfg.MaxImagesPerJob)
	}

	out := make([]decodedImage, 0, len(req.Images))
	for i, up := range req.Images {
		if s.cfg.MaxImageBytes > 0 && int64(len(up.Data)) > s.cfg.MaxImageBytes {
			return nil, fmt.Errorf("%w: image %d exceeds %d bytes", domain.ErrInvalidInput, i, s.cfg.MaxImageBytes)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(up.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: image %d is not a decodable image", domain.ErrInvalidInput, i)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, fmt.Errorf("%w: image %d has no pixels", domain.ErrInvalidInput, i)
		}
		out = append(out, decodedImage{data: up.Data, mime: "image/" + strings.ToLower(format)})
	}
	return out, nil
}
