// Package records holds the durable side effects of a completed claim and the
// member activity trail: uploaded document metadata, signed declarations, and
// activity entries.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// Activity action types.
const (
	ActionEmailSent         = "email_sent"
	ActionDocumentsUploaded = "documents_uploaded"
	ActionDeclarationSigned = "declaration_signed"
	ActionTokenRevoked      = "token_revoked"
)

// Activity is one entry in a member's activity trail.
type Activity struct {
	ID          string
	MemberID    string
	ActionType  string
	Description string
	Actor       *string
	Meta        map[string]any
	CreatedAt   time.Time
}

// ActivityLog appends activity entries. Callers treat it as fire-and-forget:
// a failed append is logged and never blocks the operation that produced it.
type ActivityLog interface {
	AppendActivity(ctx context.Context, a Activity) error
}

// DocType identifies which required document a file is.
type DocType string

const (
	DocIdentityFront DocType = "identity_front"
	DocIdentityBack  DocType = "identity_back"
)

// RequiredDocTypes are the files a document-upload claim must carry.
var RequiredDocTypes = []DocType{DocIdentityFront, DocIdentityBack}

// File is an uploaded file held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Location is an opaque handle to a stored file.
type Location struct {
	Bucket string
	Key    string
	Size   int64
	SHA256 string
}

func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// FileStore stores uploaded bytes and returns where they went.
type FileStore interface {
	StoreUploadedFile(ctx context.Context, memberID string, docType DocType, f File) (Location, error)
}

// DocumentRecord describes a document metadata row.
type DocumentRecord struct {
	MemberID     string
	TokenID      string
	DocType      DocType
	Location     Location
	OriginalName string
	ContentType  string
	Now          time.Time
}

// Document is a persisted document metadata row.
type Document struct {
	ID           string
	MemberID     string
	TokenID      string
	DocType      DocType
	Location     string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	UploadedAt   time.Time
}

// DocumentStore records uploaded document metadata.
type DocumentStore interface {
	RecordDocument(ctx context.Context, in DocumentRecord) (Document, error)
}

// SignatureFields is the payload of a signed declaration.
type SignatureFields struct {
	MemberID        string
	TokenID         string
	ConfirmAccuracy bool
	AcceptTerms     bool
	Signature       string
	SignedAt        time.Time
	IP              *string
	UserAgent       *string
}

// Declaration is a persisted declaration row.
type Declaration struct {
	ID              string
	MemberID        string
	TokenID         string
	ConfirmAccuracy bool
	AcceptTerms     bool
	Signature       string
	SignedAt        time.Time
	IP              *string
	UserAgent       *string
}

// DeclarationStore records signed declarations.
type DeclarationStore interface {
	RecordDeclaration(ctx context.Context, in SignatureFields) (Declaration, error)
}

func objectKey(memberID string, docType DocType, id string) string {
	return fmt.Sprintf("members/%s/%s/%s", memberID, docType, id)
}
