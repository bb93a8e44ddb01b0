package xapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const (
	// SignatureUsageType marks the attachment carrying a statement's JWS.
	SignatureUsageType = "http://adlnet.gov/expapi/attachments/signature"

	signatureContentType = "application/octet-stream"
)

// Attachment describes a file associated with a statement. Content is
// held locally and sent as a multipart part; it is never part of the
// JSON form.
type Attachment struct {
	UsageType   string      `json:"usageType"`
	Display     LanguageMap `json:"display"`
	Description LanguageMap `json:"description"`
	ContentType string      `json:"contentType"`
	Length      int64       `json:"length"`
	SHA2        string      `json:"sha2"`
	FileURL     string      `json:"fileUrl,omitempty"`

	content []byte
}

// SetContent stores a copy of b and derives Length and SHA2 from it.
func (a *Attachment) SetContent(b []byte) {
	a.content = bytes.Clone(b)
	if a.content == nil {
		a.content = []byte{}
	}
	sum := sha256.Sum256(b)
	a.Length = int64(len(b))
	a.SHA2 = hex.EncodeToString(sum[:])
}

// Content returns the local content, nil when none has been set.
func (a *Attachment) Content() []byte {
	return a.content
}

func (a *Attachment) HasContent() bool {
	return a != nil && a.content != nil
}

func (a *Attachment) isSignature() bool {
	return a != nil && a.UsageType == SignatureUsageType
}

func (a *Attachment) AsVersion(v Version) map[string]any {
	if a == nil {
		return nil
	}
	f := fields{}
	f.str("usageType", a.UsageType)
	f.sub("display", a.Display.AsVersion(v))
	f.sub("description", a.Description.AsVersion(v))
	f.str("contentType", a.ContentType)
	if a.Length != 0 || a.SHA2 != "" {
		f["length"] = a.Length
	}
	f.str("sha2", a.SHA2)
	f.str("fileUrl", a.FileURL)
	return f
}

var attachmentSkip = []string{"display", "description"}

func (a *Attachment) CompareWithSignature(fromSig *Attachment) Comparison {
	return compareProperties(attachmentSkip,
		stringProp("usageType", a.UsageType, fromSig.UsageType),
		customProp("display", !a.Display.IsEmpty(), !fromSig.Display.IsEmpty(), nil),
		customProp("description", !a.Description.IsEmpty(), !fromSig.Description.IsEmpty(), nil),
		stringProp("contentType", a.ContentType, fromSig.ContentType),
		property{
			name:    "length",
			thisSet: a.Length != 0 || a.SHA2 != "",
			sigSet:  fromSig.Length != 0 || fromSig.SHA2 != "",
			compare: func() Comparison { return equality(a.Length == fromSig.Length) },
		},
		stringProp("sha2", a.SHA2, fromSig.SHA2),
		stringProp("fileUrl", a.FileURL, fromSig.FileURL),
	)
}

// Equal compares metadata and content.
func (a *Attachment) Equal(o *Attachment) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.UsageType == o.UsageType &&
		a.Display.Equal(o.Display) &&
		a.Description.Equal(o.Description) &&
		a.ContentType == o.ContentType &&
		a.Length == o.Length &&
		a.SHA2 == o.SHA2 &&
		a.FileURL == o.FileURL &&
		bytes.Equal(a.content, o.content)
}

func (a *Attachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.AsVersion(LatestVersion))
}
