// Package media gère les images produits stockées dans MinIO.
package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const DefaultURLTTL = 24 * time.Hour

// MinioStore téléverse les images et produit des URLs signées
type MinioStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	secure   bool
	ttl      time.Duration
}

func NewMinioStore(client *minio.Client, bucket, endpoint string, secure bool) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, endpoint: endpoint, secure: secure, ttl: DefaultURLTTL}
}

func (m *MinioStore) publicPrefix() string {
	scheme := "http"
	if m.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/", scheme, m.endpoint, m.bucket)
}

// ObjectKey construit une clé unique sous products/
func ObjectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return "products/" + uuid.NewString() + ext
}

func (m *MinioStore) Upload(ctx context.Context, r io.Reader, size int64, filename, contentType string) (string, error) {
	key := ObjectKey(filename)
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("envoi MinIO: %w", err)
	}
	return m.publicPrefix() + key, nil
}

// Sign accepte une URL publique du bucket ou une clé relative; les URLs externes sont rendues telles quelles
func (m *MinioStore) Sign(ctx context.Context, objectURL string) (string, error) {
	key := objectURL
	if strings.HasPrefix(objectURL, "http://") || strings.HasPrefix(objectURL, "https://") {
		if !strings.HasPrefix(objectURL, m.publicPrefix()) {
			return objectURL, nil
		}
		key = strings.TrimPrefix(objectURL, m.publicPrefix())
	}

	presigned, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.ttl, make(url.Values))
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
