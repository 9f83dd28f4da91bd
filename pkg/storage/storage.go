// Package storage provides blob storage operations with an Azure Blob Storage implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/healthplan-dw/pkg/lifecycle"
)

// System manages blob storage operations and lifecycle coordination.
type System interface {
	// Start registers a startup hook that ensures the storage container exists.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams data to a blob at the given key with the specified content type.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Download returns a stream for the blob at the given key. The caller must close the reader.
	// Returns ErrNotFound if the blob does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob at the given key. Returns ErrNotFound if the blob does not exist.
	Delete(ctx context.Context, key string) error
}

type azure struct {
	client    *azblob.Client
	container string
	prefix    string
	logger    *slog.Logger
}

// New creates a storage system from the given configuration.
// It creates the Azure client but does not contact the service until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		prefix:    cfg.Prefix,
		logger:    logger.With("system", "storage"),
	}, nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, nil)
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("storage", func(ctx context.Context) error {
		_, err := a.client.CreateContainer(ctx, a.container, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			a.logger.Error("storage container initialization failed", "error", err)
			return fmt.Errorf("create container %s: %w", a.container, err)
		}

		a.logger.Info("storage container ready", "container", a.container)
		return nil
	})

	return nil
}

func (a *azure) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	name, err := a.blobName(key)
	if err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}

	if _, err := a.client.UploadStream(ctx, a.container, name, reader, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", name, err)
	}

	return nil
}

func (a *azure) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := a.blobName(key)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", name, err)
	}

	return resp.Body, nil
}

func (a *azure) Delete(ctx context.Context, key string) error {
	name, err := a.blobName(key)
	if err != nil {
		return err
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", name, err)
	}

	return nil
}

func (a *azure) blobName(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if a.prefix == "" {
		return key, nil
	}
	return path.Join(a.prefix, key), nil
}

// ValidateKey rejects empty keys and keys containing a ".." segment.
func ValidateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
