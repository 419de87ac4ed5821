// Package blobstore provides document storage for generated claim artifacts:
// rendered paper-claim forms, portal submission instructions, and remittance
// attachments. It defines the BlobStore interface and an in-memory
// implementation suitable for testing and development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidCategory = errors.New("invalid document category")
)

// MaxFileSize is the maximum allowed blob size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// Document categories.
const (
	CategoryPaperClaim         = "paper-claim"
	CategoryPortalInstructions = "portal-instructions"
	CategoryRemittance         = "remittance"
	CategorySupportingDoc      = "supporting-doc"
	CategoryOther              = "other"
)

// AllowedCategories lists valid document category values.
var AllowedCategories = map[string]bool{
	CategoryPaperClaim:         true,
	CategoryPortalInstructions: true,
	CategoryRemittance:         true,
	CategorySupportingDoc:      true,
	CategoryOther:              true,
}

// BlobMetadata describes a stored document.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ClaimID     string    `json:"claim_id,omitempty"`
	Category    string    `json:"category"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore stores and retrieves claim documents.
type BlobStore interface {
	Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Get(ctx context.Context, id string) (*BlobMetadata, io.ReadCloser, error)
	Metadata(ctx context.Context, id string) (*BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	ListByClaim(ctx context.Context, claimID string) ([]*BlobMetadata, error)
}

// InMemoryBlobStore is a thread-safe in-memory BlobStore.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	metas map[string]*BlobMetadata
	data  map[string][]byte
}

// NewInMemoryBlobStore creates an empty in-memory store.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		metas: make(map[string]*BlobMetadata),
		data:  make(map[string][]byte),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.Category == "" {
		meta.Category = "other"
	}
	if !AllowedCategories[meta.Category] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, meta.Category)
	}

	buf, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(buf)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = int64(len(buf))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(buf))
	meta.CreatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := meta
	s.metas[meta.ID] = &stored
	s.data[meta.ID] = buf

	result := meta
	return &result, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, id string) (*BlobMetadata, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metas[id]
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	cp := *meta
	return &cp, io.NopCloser(bytes.NewReader(s.data[id])), nil
}

func (s *InMemoryBlobStore) Metadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metas[id]
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := *meta
	return &cp, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.metas[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.metas, id)
	delete(s.data, id)
	return nil
}

func (s *InMemoryBlobStore) ListByClaim(_ context.Context, claimID string) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*BlobMetadata
	for _, meta := range s.metas {
		if meta.ClaimID == claimID {
			cp := *meta
			out = append(out, &cp)
		}
	}
	return out, nil
}
