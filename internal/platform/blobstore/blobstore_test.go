package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPut_AndGet(t *testing.T) {
	s := NewInMemoryBlobStore()
	meta, err := s.Put(context.Background(), BlobMetadata{
		FileName:    "claim-CLM-001.pdf",
		ContentType: "application/pdf",
		ClaimID:     "claim-1",
		Category:    "paper-claim",
	}, strings.NewReader("rendered form"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if meta.ID == "" || meta.Hash == "" || meta.Size != int64(len("rendered form")) {
		t.Errorf("metadata not populated: %+v", meta)
	}

	got, rc, err := s.Get(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if !bytes.Equal(content, []byte("rendered form")) {
		t.Errorf("content mismatch: %q", content)
	}
	if got.FileName != "claim-CLM-001.pdf" {
		t.Errorf("unexpected file name %q", got.FileName)
	}
}

func TestPut_Validation(t *testing.T) {
	s := NewInMemoryBlobStore()

	if _, err := s.Put(context.Background(), BlobMetadata{}, strings.NewReader("x")); !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
	if _, err := s.Put(context.Background(), BlobMetadata{FileName: "a.pdf", Category: "bogus"}, strings.NewReader("x")); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestDelete_AndListByClaim(t *testing.T) {
	s := NewInMemoryBlobStore()
	m1, _ := s.Put(context.Background(), BlobMetadata{FileName: "a.pdf", ClaimID: "claim-1", Category: "paper-claim"}, strings.NewReader("a"))
	s.Put(context.Background(), BlobMetadata{FileName: "b.pdf", ClaimID: "claim-2", Category: "paper-claim"}, strings.NewReader("b"))

	blobs, err := s.ListByClaim(context.Background(), "claim-1")
	if err != nil || len(blobs) != 1 {
		t.Fatalf("expected 1 blob for claim-1, got %d (%v)", len(blobs), err)
	}

	if err := s.Delete(context.Background(), m1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Metadata(context.Background(), m1.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := s.Delete(context.Background(), m1.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on double delete, got %v", err)
	}
}
