// Package multipart builds and splits multipart/mixed bodies as used by
// statement requests that carry attachment content.
//
// Unlike mime/multipart, header names are lower-cased rather than
// canonicalized, tab-folded continuation lines are kept joined to the
// previous value, and exactly one CRLF preceding a boundary is removed from
// each body so content that itself ends in CRLF survives.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"
)

const (
	crlf = "\r\n"

	// MediaType is the media type of a multipart statement body.
	MediaType = "multipart/mixed"
)

var (
	ErrMissingBoundary = errors.New("multipart: boundary missing")
	ErrMalformedPart   = errors.New("multipart: malformed part")
	ErrMalformedHeader = errors.New("multipart: malformed header")
)

// Header is a multi-valued header map keyed by lower-cased names.
type Header map[string][]string

// Get returns the first value for key, matched case-insensitively.
func (h Header) Get(key string) string {
	if v := h[strings.ToLower(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns all values for key, matched case-insensitively.
func (h Header) Values(key string) []string {
	return h[strings.ToLower(key)]
}

// Add appends a value for key.
func (h Header) Add(key, value string) {
	k := strings.ToLower(key)
	h[k] = append(h[k], value)
}

// Set replaces any values for key.
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = []string{value}
}

// Part is one body part of a multipart message.
type Part struct {
	Header Header
	Body   []byte
}

// ContentType returns the boundary-bearing Content-Type value for a body
// built with boundary.
func ContentType(boundary string) string {
	return MediaType + "; boundary=" + boundary
}

// ParseContentType splits a Content-Type header value into its media type
// and, for multipart/mixed, its boundary parameter. A multipart/mixed value
// without a boundary returns ErrMissingBoundary.
func ParseContentType(v string) (string, string, error) {
	mediaType, params, err := mime.ParseMediaType(v)
	if err != nil {
		return "", "", fmt.Errorf("content type %q: %w", v, err)
	}
	if mediaType != MediaType {
		return mediaType, "", nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		return mediaType, "", ErrMissingBoundary
	}
	return mediaType, boundary, nil
}

// Encode writes parts separated by boundary and closed by the terminal
// marker. Header names are written in the order given by sorted keys
// except Content-Type, which always comes first.
//
// The boundary is not checked against the part bodies; callers use random
// tokens long enough that a collision is not a practical concern.
func Encode(boundary string, parts []Part) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(crlf)
		}
		buf.WriteString("--" + boundary + crlf)
		writeHeader(&buf, p.Header)
		buf.WriteString(crlf)
		buf.Write(p.Body)
	}
	buf.WriteString(crlf + "--" + boundary + "--")
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, h Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		if k != "content-type" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := h["content-type"]; ok {
		keys = append([]string{"content-type"}, keys...)
	}
	for _, k := range keys {
		for _, v := range h[k] {
			buf.WriteString(displayName(k) + ": " + v + crlf)
		}
	}
}

// displayName renders a lower-cased key in the conventional form, keeping
// the X-Experience-API prefix in its registered spelling.
func displayName(k string) string {
	if strings.HasPrefix(k, "x-experience-api-") {
		return "X-Experience-API-" + canonical(k[len("x-experience-api-"):])
	}
	return canonical(k)
}

func canonical(k string) string {
	words := strings.Split(k, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, "-")
}

// Decode splits body on boundary and returns the parts in wire order.
// The preamble, empty segments and everything after the terminal marker
// are discarded.
func Decode(boundary string, body []byte) ([]Part, error) {
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	delim := []byte("--" + boundary)
	segments := bytes.Split(body, delim)

	var parts []Part
	// Segment zero precedes the first boundary and is preamble.
	for i, seg := range segments[1:] {
		if bytes.HasPrefix(seg, []byte("--")) {
			break
		}

		// Skip the remainder of the boundary line.
		nl := bytes.Index(seg, []byte(crlf))
		if nl < 0 {
			if len(bytes.TrimSpace(seg)) == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: part %d: no line break after boundary", ErrMalformedPart, i)
		}
		seg = seg[nl+len(crlf):]
		if len(seg) == 0 {
			continue
		}

		var rawHeader, partBody []byte
		if bytes.HasPrefix(seg, []byte(crlf)) {
			partBody = seg[len(crlf):]
		} else {
			sep := bytes.Index(seg, []byte(crlf+crlf))
			if sep < 0 {
				return nil, fmt.Errorf("%w: part %d: no header separator", ErrMalformedPart, i)
			}
			rawHeader = seg[:sep]
			partBody = seg[sep+2*len(crlf):]
		}

		// Only the single CRLF that belongs to the next delimiter.
		partBody = bytes.TrimSuffix(partBody, []byte(crlf))

		h, err := parseHeader(rawHeader)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}

		parts = append(parts, Part{
			Header: h,
			Body:   partBody,
		})
	}

	return parts, nil
}

func parseHeader(raw []byte) (Header, error) {
	h := make(Header)
	if len(raw) == 0 {
		return h, nil
	}

	var last string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if line[0] == '\t' {
			if last == "" {
				return nil, fmt.Errorf("%w: continuation without header: %q", ErrMalformedHeader, line)
			}
			vals := h[last]
			vals[len(vals)-1] += crlf + "\t" + strings.TrimSpace(line)
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		last = strings.ToLower(strings.TrimSpace(name))
		h[last] = append(h[last], strings.TrimSpace(value))
	}

	return h, nil
}
