package minio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/storage"
)

var ErrEmptyKey = errors.New("empty object key")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

// Archive guarda os anexos recebidos num bucket S3-compatível. A chave
// vem pronta do pipeline (chats/<jid>/<dia>/<arquivo>); aqui só entra o
// upload e a montagem da URL final. Sem remoção: o arquivo de mídia é
// append-only.
type Archive struct {
	core      *minio.Client
	bucket    string
	publicURL string
}

func New(ctx context.Context, cfg Config) (*Archive, error) {
	core, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	if err := ensureBucket(ctx, core, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}

	return &Archive{core: core, bucket: cfg.Bucket, publicURL: cfg.PublicURL}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	opts := minio.MakeBucketOptions{Region: region}
	return client.MakeBucket(ctx, bucket, opts)
}

func (a *Archive) PutObject(ctx context.Context, in storage.UploadInput) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(in.Key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	// Mídia baixada do WhatsApp às vezes chega sem mimetype.
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.core.PutObject(ctx, a.bucket, key, in.Body, in.Size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return a.objectURL(key), nil
}

func (a *Archive) objectURL(key string) string {
	if a.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(a.publicURL, "/"), key)
	}

	endpoint := a.core.EndpointURL()
	if endpoint != nil {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), a.bucket, key)
	}

	return fmt.Sprintf("/%s/%s", a.bucket, key)
}

var _ storage.Service = (*Archive)(nil)
