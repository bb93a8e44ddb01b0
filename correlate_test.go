package xapi

import (
	"testing"

	"github.com/bruth/xapi/multipart"
	"github.com/bruth/xapi/testutil"
)

func textAttachment(s string) *Attachment {
	a := &Attachment{
		UsageType:   "http://example.com/usage/text",
		Display:     NewLanguageMap(map[string]string{"en-US": s}),
		ContentType: "text/plain",
	}
	a.SetContent([]byte(s))
	return a
}

// stripped returns a copy of a as decoded from JSON, without content.
func stripped(a *Attachment) *Attachment {
	c := *a
	c.content = nil
	return &c
}

func TestMultipartRoundTrip(t *testing.T) {
	is := testutil.NewIs(t)

	hello := textAttachment("hello")
	world := textAttachment("world")
	primary := []byte(`{"id":"fd41c918-b88b-4b20-a0a5-a4c32391aaa0"}`)

	body := EncodeMultipart("abc123", primary, []*Attachment{hello, world})

	parts, err := DecodeMultipart("abc123", body)
	is.NoErr(err)
	is.Equal(len(parts), 3)
	is.Equal(parts[0].Body, primary)
	is.Equal(parts[0].Header.Get("Content-Type"), "application/json")

	atts := []*Attachment{stripped(hello), stripped(world)}
	is.NoErr(AttachContent(parts, atts))
	is.Equal(atts[0].Content(), []byte("hello"))
	is.Equal(atts[1].Content(), []byte("world"))
}

func TestAttachContentAnyOrder(t *testing.T) {
	is := testutil.NewIs(t)

	hello := textAttachment("hello")
	world := textAttachment("world")

	part := func(a *Attachment) multipart.Part {
		h := make(multipart.Header)
		h.Set("Content-Type", "text/plain")
		h.Set(HashHeader, a.SHA2)
		return multipart.Part{Header: h, Body: a.Content()}
	}

	// Parts in the reverse order of the attachments.
	body := multipart.Encode("xyz", []multipart.Part{
		{Header: multipart.Header{"content-type": {"application/json"}}, Body: []byte("{}")},
		part(world),
		part(hello),
	})

	parts, err := DecodeMultipart("xyz", body)
	is.NoErr(err)

	atts := []*Attachment{stripped(hello), stripped(world)}
	is.NoErr(AttachContent(parts, atts))
	is.Equal(string(atts[0].Content()), "hello")
	is.Equal(string(atts[1].Content()), "world")
}

func TestEncodeMultipartDedup(t *testing.T) {
	is := testutil.NewIs(t)

	a := textAttachment("same")
	b := textAttachment("same")
	b.UsageType = "http://example.com/usage/other"
	noContent := &Attachment{UsageType: "http://example.com/usage/remote", FileURL: "http://example.com/f.txt", SHA2: "00"}

	body := EncodeMultipart("b", []byte("{}"), []*Attachment{a, b, noContent})
	parts, err := DecodeMultipart("b", body)
	is.NoErr(err)
	is.Equal(len(parts), 2)

	atts := []*Attachment{stripped(a), stripped(b), stripped(noContent)}
	is.NoErr(AttachContent(parts, atts))
	is.Equal(string(atts[0].Content()), "same")
	is.Equal(string(atts[1].Content()), "same")
	is.True(!atts[2].HasContent())
}

func TestAttachContentErrors(t *testing.T) {
	hello := textAttachment("hello")

	tests := []struct {
		Name  string
		Parts []multipart.Part
		Err   error
	}{
		{
			"missing-part",
			[]multipart.Part{{Body: []byte("{}")}},
			ErrAttachmentNotFound,
		},
		{
			"missing-hash-header",
			[]multipart.Part{
				{Body: []byte("{}")},
				{Header: multipart.Header{"content-type": {"text/plain"}}, Body: []byte("hello")},
			},
			multipart.ErrMalformedHeader,
		},
		{
			"hash-mismatch",
			[]multipart.Part{
				{Body: []byte("{}")},
				{Header: multipart.Header{"x-experience-api-hash": {hello.SHA2}}, Body: []byte("hellO")},
			},
			ErrAttachmentHashMismatch,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			is := testutil.NewIs(t)
			err := AttachContent(test.Parts, []*Attachment{stripped(hello)})
			is.Err(err, test.Err)
		})
	}
}

func TestDecodeMultipartNoPrimary(t *testing.T) {
	is := testutil.NewIs(t)

	_, err := DecodeMultipart("b", []byte("--b--"))
	is.True(err != nil)
}
