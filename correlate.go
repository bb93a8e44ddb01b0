package xapi

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bruth/xapi/multipart"
)

const (
	HashHeader = "X-Experience-API-Hash"

	jsonContentType = "application/json"
)

var (
	ErrAttachmentNotFound     = errors.New("xapi: attachment content not found")
	ErrAttachmentHashMismatch = errors.New("xapi: attachment content does not match its hash")
)

// EncodeMultipart builds a multipart/mixed body. The first part is the
// JSON primary payload; every distinct content hash among attachments
// with local content follows as its own part, so identical content is
// sent once.
func EncodeMultipart(boundary string, primary []byte, attachments []*Attachment) []byte {
	parts := []multipart.Part{{
		Header: multipart.Header{"content-type": {jsonContentType}},
		Body:   primary,
	}}

	seen := make(map[string]struct{})
	for _, a := range attachments {
		if !a.HasContent() {
			continue
		}
		if _, ok := seen[a.SHA2]; ok {
			continue
		}
		seen[a.SHA2] = struct{}{}

		h := make(multipart.Header)
		h.Set("Content-Type", a.ContentType)
		h.Set("Content-Transfer-Encoding", "binary")
		h.Set(HashHeader, a.SHA2)
		parts = append(parts, multipart.Part{Header: h, Body: a.Content()})
	}

	return multipart.Encode(boundary, parts)
}

// DecodeMultipart splits raw into its parts. Part zero is the primary
// JSON payload.
func DecodeMultipart(boundary string, raw []byte) ([]multipart.Part, error) {
	parts, err := multipart.Decode(boundary, raw)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no primary part", multipart.ErrMalformedPart)
	}
	return parts, nil
}

// AttachContent sets the content of each attachment from the part whose
// hash header equals the attachment's sha2. Parts after the first are
// considered, in any order. An attachment with no matching part is
// ErrAttachmentNotFound, with one exception to that strict rule: an
// attachment carrying a fileUrl may have no part, since its content lives
// at that URL, and is left without content. Nil attachments are skipped.
func AttachContent(parts []multipart.Part, attachments []*Attachment) error {
	byHash := make(map[string][]byte)
	for i, p := range parts {
		if i == 0 {
			continue
		}
		h := strings.ToLower(p.Header.Get(HashHeader))
		if h == "" {
			return fmt.Errorf("%w: part %d has no %s header", multipart.ErrMalformedHeader, i, HashHeader)
		}
		sum := sha256.Sum256(p.Body)
		if hex.EncodeToString(sum[:]) != h {
			return fmt.Errorf("%w: part %d: %s", ErrAttachmentHashMismatch, i, h)
		}
		byHash[h] = p.Body
	}

	for _, a := range attachments {
		if a == nil {
			continue
		}
		body, ok := byHash[strings.ToLower(a.SHA2)]
		if !ok {
			if a.FileURL != "" {
				continue
			}
			return fmt.Errorf("%w: %s", ErrAttachmentNotFound, a.SHA2)
		}
		a.SetContent(body)
	}
	return nil
}

// statementAttachments collects the attachments of every statement.
func statementAttachments(stmts ...*Statement) []*Attachment {
	var out []*Attachment
	for _, s := range stmts {
		out = append(out, s.Attachments...)
	}
	return out
}
