package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	sc "github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// PresignedURL is a time-limited URL for one attachment object.
type PresignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AttachmentService hands out presigned S3 URLs for the encrypted attachment
// blob of a record. The blob is as opaque to the server as the record itself.
type AttachmentService struct {
	repo   records.Repository
	config *sc.Config
	logger logging.Logger
	now    func() time.Time
}

func NewAttachmentService(repo records.Repository, logger logging.Logger, config *sc.Config) *AttachmentService {
	return &AttachmentService{
		repo:   repo,
		config: config,
		logger: logger.With("module", "attachments"),
		now:    time.Now,
	}
}

// AttachmentKey is the object key of a record's attachment.
func AttachmentKey(owner, id string) string {
	return fmt.Sprintf("users/%s/records/%s", url.PathEscape(owner), url.PathEscape(id))
}

func (s *AttachmentService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// requireLive returns ErrorNotFound unless owner has a live record with id.
func (s *AttachmentService) requireLive(ctx context.Context, owner, id string) error {
	rec, err := s.repo.Get(ctx, owner, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrSyncUnavailable, err)
	}
	if rec.IsDeleted {
		return common.ErrorNotFound
	}
	return nil
}

// PresignUpload returns a PUT URL for the attachment of a live record.
func (s *AttachmentService) PresignUpload(ctx context.Context, owner, id string) (*PresignedURL, error) {
	if err := s.requireLive(ctx, owner, id); err != nil {
		return nil, err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := AttachmentKey(owner, id)
	expires := s.now().Add(s.config.PresignTTL)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignTTL))
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "upload url issued", "owner", owner, "id", id)
	return &PresignedURL{URL: req.URL, Key: key, ExpiresAt: expires}, nil
}

// PresignDownload returns a GET URL for the attachment of a live record.
func (s *AttachmentService) PresignDownload(ctx context.Context, owner, id string) (*PresignedURL, error) {
	if err := s.requireLive(ctx, owner, id); err != nil {
		return nil, err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := AttachmentKey(owner, id)
	expires := s.now().Add(s.config.PresignTTL)

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignTTL))
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "download url issued", "owner", owner, "id", id)
	return &PresignedURL{URL: req.URL, Key: key, ExpiresAt: expires}, nil
}
