package services

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// CloudinaryUploader stores chat attachments directly in Cloudinary under chat/<chatId>.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld}, nil
}

func (u *CloudinaryUploader) UploadAttachment(ctx context.Context, chatID string, att models.Attachment) (string, error) {
	result, err := u.cld.Upload.Upload(ctx, att.Body, uploader.UploadParams{
		Folder:       "chat/" + chatID,
		ResourceType: "auto", // image, video or raw
	})
	if err != nil {
		return "", &backend.Error{Kind: backend.KindTransport, Message: "failed to upload to Cloudinary", Err: err}
	}
	if result.Error.Message != "" {
		return "", &backend.Error{Kind: backend.KindServer, Message: result.Error.Message}
	}
	return result.SecureURL, nil
}
