// Package mediastore uploads incident attachments to an external media
// host over HTTP.
package mediastore

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/google/uuid"
)

const (
	DefaultFolder   = "lazarus/incidents"
	DefaultMaxFiles = 10
	DefaultTimeout  = 30 * time.Second
)

// Options configures the upload endpoint. Without a DestroyURL deleted
// attachments are only unlinked, the stored files stay on the host.
type Options struct {
	UploadURL  string
	DestroyURL string
	APIKey     string
	Folder     string
	Timeout    time.Duration
	MaxFiles   int
}

// UploadResult is the response body of the upload endpoint
type UploadResult struct {
	URL          string `json:"secure_url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
	Format       string `json:"format"`
	Bytes        int64  `json:"bytes"`
}

// DestroyResult is the response body of the destroy endpoint
type DestroyResult struct {
	Result string `json:"result"`
}

// HTTPStore implements lazarus.MediaStore
type HTTPStore struct {
	client     *resty.Client
	destroyURL string
	folder     string
	maxFiles   int
	logger     lazarus.Logger
	now        func() time.Time
}

var _ lazarus.MediaStore = (*HTTPStore)(nil)

func New(opts Options, logger lazarus.Logger) (*HTTPStore, error) {
	if strings.TrimSpace(opts.UploadURL) == "" {
		return nil, goerrors.New("media upload url is required", goerrors.CategoryBadInput)
	}
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}

	client := resty.New().
		SetBaseURL(opts.UploadURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}

	return &HTTPStore{
		client:     client,
		destroyURL: strings.TrimSpace(opts.DestroyURL),
		folder:     opts.Folder,
		maxFiles:   opts.MaxFiles,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// UploadMany uploads files in order and stops at the first failure.
// Already uploaded files are returned along with the error.
func (s *HTTPStore) UploadMany(ctx context.Context, incidentID uuid.UUID, files []lazarus.MediaFile) ([]*lazarus.IncidentMedia, error) {
	if len(files) > s.maxFiles {
		return nil, goerrors.New("too many media files", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"max_files": s.maxFiles, "received": len(files)})
	}

	out := make([]*lazarus.IncidentMedia, 0, len(files))
	for _, file := range files {
		media, err := s.upload(ctx, incidentID, file)
		if err != nil {
			return out, err
		}
		out = append(out, media)
	}
	return out, nil
}

func (s *HTTPStore) upload(ctx context.Context, incidentID uuid.UUID, file lazarus.MediaFile) (*lazarus.IncidentMedia, error) {
	var result UploadResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"folder":        s.folder,
			"resource_type": "auto",
		}).
		SetFileReader("file", file.Filename, bytes.NewReader(file.Data)).
		SetResult(&result).
		Post("")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "media upload failed").
			WithMetadata(map[string]any{"file": file.Filename})
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		if s.logger != nil {
			s.logger.Error("media host rejected upload", "file", file.Filename, "status", resp.StatusCode())
		}
		return nil, goerrors.New("media host rejected upload", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"file": file.Filename, "status": resp.StatusCode()})
	}

	if result.URL == "" || result.PublicID == "" {
		return nil, goerrors.New("media host returned an incomplete response", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"file": file.Filename})
	}

	return &lazarus.IncidentMedia{
		ID:         uuid.New(),
		IncidentID: incidentID,
		URL:        result.URL,
		PublicID:   result.PublicID,
		Kind:       mediaKind(result.ResourceType, file.ContentType),
		Format:     result.Format,
		Size:       result.Bytes,
		UploadedAt: s.now().UTC(),
	}, nil
}

// Delete asks the host to drop each file. A "not found" answer counts as
// done.
func (s *HTTPStore) Delete(ctx context.Context, publicIDs ...string) error {
	if s.destroyURL == "" {
		if s.logger != nil && len(publicIDs) > 0 {
			s.logger.Warn("media destroy url not configured, files kept on host", "count", len(publicIDs))
		}
		return nil
	}

	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		var result DestroyResult
		resp, err := s.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{"public_id": id}).
			SetResult(&result).
			Post(s.destroyURL)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "media delete failed").
				WithMetadata(map[string]any{"public_id": id})
		}
		if resp.StatusCode() == http.StatusNotFound || result.Result == "not found" {
			continue
		}
		if resp.StatusCode() != http.StatusOK || result.Result != "ok" {
			return goerrors.New("media host rejected delete", goerrors.CategoryOperation).
				WithMetadata(map[string]any{"public_id": id, "status": resp.StatusCode(), "result": result.Result})
		}
	}
	return nil
}

func mediaKind(resourceType, contentType string) lazarus.MediaKind {
	if resourceType == "video" || strings.HasPrefix(contentType, "video/") {
		return lazarus.MediaVideo
	}
	return lazarus.MediaPhoto
}
