package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/member"
	"memberdesk/cmd/internal/records"
)

// MaxFileBytes is the largest file a document-upload claim accepts.
const MaxFileBytes = 5 << 20

var (
	ErrFileTooLarge   = errors.New("claim: file exceeds 5 MiB")
	ErrEmptyFile      = errors.New("claim: file is empty")
	ErrUnknownDocType = errors.New("claim: unknown document type")
)

// UploadForm holds the files selected for a document-upload claim.
type UploadForm struct {
	files map[records.DocType]records.File
}

// NewUploadForm returns an empty form.
func NewUploadForm(member.Member) *UploadForm {
	return &UploadForm{files: make(map[records.DocType]records.File, len(records.RequiredDocTypes))}
}

// Purpose implements Payload.
func (f *UploadForm) Purpose() linktoken.Purpose { return linktoken.PurposeDocumentUpload }

// Select places file in the docType slot. An oversized or empty file is
// rejected and the slot is left empty.
func (f *UploadForm) Select(docType records.DocType, file records.File) error {
	if !requiredDocType(docType) {
		return ErrUnknownDocType
	}
	delete(f.files, docType)
	switch {
	case file.Size() == 0:
		return ErrEmptyFile
	case file.Size() > MaxFileBytes:
		return ErrFileTooLarge
	}
	file.Data = append([]byte(nil), file.Data...)
	f.files[docType] = file
	return nil
}

// Selected returns the file in the docType slot.
func (f *UploadForm) Selected(docType records.DocType) (records.File, bool) {
	file, ok := f.files[docType]
	return file, ok
}

// Complete implements Payload.
func (f *UploadForm) Complete() error {
	fe := FieldErrors{}
	for _, dt := range records.RequiredDocTypes {
		if _, ok := f.files[dt]; !ok {
			fe[string(dt)] = "Please select a file."
		}
	}
	return fe.orNil()
}

func requiredDocType(dt records.DocType) bool {
	for _, want := range records.RequiredDocTypes {
		if dt == want {
			return true
		}
	}
	return false
}

// UploadFlow stores every selected file, then records its metadata.
func UploadFlow(files records.FileStore, docs records.DocumentStore) Flow[*UploadForm] {
	return Flow[*UploadForm]{
		Purpose: linktoken.PurposeDocumentUpload,
		New:     NewUploadForm,
		Effect: func(ctx context.Context, c Claim, f *UploadForm) (records.Activity, error) {
			names := make([]string, 0, len(records.RequiredDocTypes))
			locations := make(map[string]any, len(records.RequiredDocTypes))
			for _, dt := range records.RequiredDocTypes {
				file := f.files[dt]
				loc, err := files.StoreUploadedFile(ctx, c.Member.ID, dt, file)
				if err != nil {
					return records.Activity{}, fmt.Errorf("store %s: %w", dt, err)
				}
				_, err = docs.RecordDocument(ctx, records.DocumentRecord{
					MemberID:     c.Member.ID,
					TokenID:      c.Token.ID,
					DocType:      dt,
					Location:     loc,
					OriginalName: file.Name,
					ContentType:  file.ContentType,
					Now:          c.Now,
				})
				if err != nil {
					return records.Activity{}, fmt.Errorf("record %s: %w", dt, err)
				}
				names = append(names, string(dt))
				locations[string(dt)] = loc.String()
			}
			return records.Activity{
				ActionType:  records.ActionDocumentsUploaded,
				Description: "Uploaded " + strings.Join(names, ", "),
				Meta:        map[string]any{"documents": locations},
			}, nil
		},
	}
}
