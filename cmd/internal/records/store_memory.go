package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"memberdesk/cmd/ids"
)

// InMemoryStore implements every records boundary in memory (dev mode, tests).
type InMemoryStore struct {
	mu           sync.Mutex
	bucket       string
	files        map[string][]byte
	documents    []Document
	declarations []Declaration
	activities   []Activity
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bucket: "memory",
		files:  make(map[string][]byte),
	}
}

// StoreUploadedFile implements FileStore.
func (s *InMemoryStore) StoreUploadedFile(ctx context.Context, memberID string, docType DocType, f File) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if strings.TrimSpace(memberID) == "" || len(f.Data) == 0 {
		return Location{}, ErrInvalidInput
	}
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		return Location{}, err
	}
	key := objectKey(memberID, docType, id)
	sum := sha256.Sum256(f.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = append([]byte(nil), f.Data...)
	return Location{Bucket: s.bucket, Key: key, Size: f.Size(), SHA256: hex.EncodeToString(sum[:])}, nil
}

// RecordDocument implements DocumentStore.
func (s *InMemoryStore) RecordDocument(ctx context.Context, in DocumentRecord) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(in.MemberID) == "" || in.Location.Key == "" {
		return Document{}, ErrInvalidInput
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:           id,
		MemberID:     in.MemberID,
		TokenID:      in.TokenID,
		DocType:      in.DocType,
		Location:     in.Location.String(),
		OriginalName: in.OriginalName,
		ContentType:  in.ContentType,
		SizeBytes:    in.Location.Size,
		UploadedAt:   in.Now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, doc)
	return doc, nil
}

// RecordDeclaration implements DeclarationStore.
func (s *InMemoryStore) RecordDeclaration(ctx context.Context, in SignatureFields) (Declaration, error) {
	if err := ctx.Err(); err != nil {
		return Declaration{}, err
	}
	if strings.TrimSpace(in.MemberID) == "" || strings.TrimSpace(in.Signature) == "" {
		return Declaration{}, ErrInvalidInput
	}
	id, err := ids.NewULID(in.SignedAt)
	if err != nil {
		return Declaration{}, err
	}
	d := Declaration{
		ID:              id,
		MemberID:        in.MemberID,
		TokenID:         in.TokenID,
		ConfirmAccuracy: in.ConfirmAccuracy,
		AcceptTerms:     in.AcceptTerms,
		Signature:       in.Signature,
		SignedAt:        in.SignedAt,
		IP:              in.IP,
		UserAgent:       in.UserAgent,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declarations = append(s.declarations, d)
	return d, nil
}

// AppendActivity implements ActivityLog.
func (s *InMemoryStore) AppendActivity(ctx context.Context, a Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(a.MemberID) == "" || strings.TrimSpace(a.ActionType) == "" {
		return ErrInvalidInput
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ID == "" {
		id, err := ids.NewULID(a.CreatedAt)
		if err != nil {
			return err
		}
		a.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
	return nil
}

// Documents returns recorded documents for a member.
func (s *InMemoryStore) Documents(memberID string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	for _, d := range s.documents {
		if d.MemberID == memberID {
			out = append(out, d)
		}
	}
	return out
}

// Declarations returns recorded declarations for a member.
func (s *InMemoryStore) Declarations(memberID string) []Declaration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Declaration
	for _, d := range s.declarations {
		if d.MemberID == memberID {
			out = append(out, d)
		}
	}
	return out
}

// Activities returns activity entries for a member in append order.
func (s *InMemoryStore) Activities(memberID string) []Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Activity
	for _, a := range s.activities {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	return out
}

// File returns stored bytes by key.
func (s *InMemoryStore) File(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[key]
	return b, ok
}
