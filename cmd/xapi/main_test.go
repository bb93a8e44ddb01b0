package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/bruth/xapi"
	"github.com/bruth/xapi/multipart"
)

const statementJSON = `{
	"actor": {"mbox": "mailto:learner@example.com"},
	"verb": {"id": "http://adlnet.gov/expapi/verbs/attempted"},
	"object": {"id": "http://example.com/activities/a"}
}`

// fakeLRS keeps the raw bodies of saved statements and serves them back.
type fakeLRS struct {
	t      *testing.T
	bodies map[string][]byte
	types  map[string]string
}

func (f *fakeLRS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/xapi/about":
		w.Write([]byte(`{"version": ["1.0.3"]}`))
	case r.URL.Path == "/xapi/statements" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.bodies["fd41c918-b88b-4b20-a0a5-a4c32391aaa0"] = body
		f.types["fd41c918-b88b-4b20-a0a5-a4c32391aaa0"] = r.Header.Get("Content-Type")
		w.Write([]byte(`["fd41c918-b88b-4b20-a0a5-a4c32391aaa0"]`))
	case r.URL.Path == "/xapi/statements" && r.Method == http.MethodGet:
		id := r.URL.Query().Get("statementId")
		body, ok := f.bodies[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		// The saved body holds an array; serve its single statement.
		_, boundary, err := multipart.ParseContentType(f.types[id])
		if err != nil || boundary == "" {
			w.Write(bytes.Trim(bytes.TrimSpace(body), "[]"))
			return
		}
		parts, err := xapi.DecodeMultipart(boundary, body)
		if err != nil {
			f.t.Error(err)
			return
		}
		parts[0].Body = bytes.Trim(bytes.TrimSpace(parts[0].Body), "[]")
		w.Header().Set("Content-Type", f.types[id])
		w.Write(multipart.Encode(boundary, parts))
	default:
		http.NotFound(w, r)
	}
}

func newFakeLRS(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(&fakeLRS{
		t:      t,
		bodies: make(map[string][]byte),
		types:  make(map[string]string),
	})
	t.Cleanup(srv.Close)
	return srv.URL + "/xapi/"
}

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func writeKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return writeFile(t, "key.pem", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})),
		writeFile(t, "pub.pem", pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
}

func TestRunAbout(t *testing.T) {
	is := is.New(t)

	endpoint := newFakeLRS(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"--endpoint", endpoint, "about"}, &stdout, &stderr)
	is.NoErr(err)
	is.True(strings.Contains(stdout.String(), `"1.0.3"`))
}

func TestRunSendGetVerify(t *testing.T) {
	is := is.New(t)

	endpoint := newFakeLRS(t)
	keyPath, pubPath := writeKeys(t)
	stmtPath := writeFile(t, "statement.json", []byte(statementJSON))
	ctx := context.Background()

	var stdout bytes.Buffer
	err := run(ctx, []string{"--endpoint", endpoint, "send", "--key", keyPath, stmtPath}, &stdout, io.Discard)
	is.NoErr(err)
	is.Equal(strings.TrimSpace(stdout.String()), "fd41c918-b88b-4b20-a0a5-a4c32391aaa0")

	stdout.Reset()
	err = run(ctx, []string{"--endpoint", endpoint, "get", "fd41c918-b88b-4b20-a0a5-a4c32391aaa0"}, &stdout, io.Discard)
	is.NoErr(err)
	is.True(strings.Contains(stdout.String(), "mailto:learner@example.com"))

	stdout.Reset()
	err = run(ctx, []string{"--endpoint", endpoint, "verify", "--key", pubPath, "fd41c918-b88b-4b20-a0a5-a4c32391aaa0"}, &stdout, io.Discard)
	is.NoErr(err)
	is.Equal(strings.TrimSpace(stdout.String()), "ok")
}

func TestRunErrors(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	err := run(ctx, []string{"about"}, io.Discard, io.Discard)
	is.True(err != nil) // no endpoint

	err = run(ctx, []string{"--endpoint", "https://lrs.example.com/", "--log-level", "loud", "about"}, io.Discard, io.Discard)
	is.True(err != nil)

	err = run(ctx, []string{"--endpoint", newFakeLRS(t), "send", filepath.Join(t.TempDir(), "missing.json")}, io.Discard, io.Discard)
	is.True(err != nil)
}
