package xapi

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gowebpki/jcs"

	"github.com/bruth/xapi/clock"
	"github.com/bruth/xapi/id"
)

var (
	ErrAlreadySigned      = errors.New("xapi: statement already signed")
	ErrNoSignature        = errors.New("xapi: statement has no signature")
	ErrUnsupportedKey     = errors.New("xapi: unsupported signing key")
	ErrNoVerificationKey  = errors.New("xapi: no verification key")
	ErrMalformedSignature = errors.New("xapi: malformed signature")
)

type signOptions struct {
	method jwt.SigningMethod
	certs  []*x509.Certificate
	ids    id.ID
	clock  clock.Clock
}

type signOption func(o *signOptions) error

func (f signOption) addOption(o *signOptions) error {
	return f(o)
}

// SignOption models an option when signing a statement.
type SignOption interface {
	addOption(o *signOptions) error
}

// WithSigningMethod overrides the JWS algorithm derived from the key.
func WithSigningMethod(m jwt.SigningMethod) SignOption {
	return signOption(func(o *signOptions) error {
		o.method = m
		return nil
	})
}

// WithCertificate embeds the certificate chain, leaf first, in the x5c
// header so verifiers do not need the key out of band.
func WithCertificate(chain ...*x509.Certificate) SignOption {
	return signOption(func(o *signOptions) error {
		o.certs = chain
		return nil
	})
}

// SignID sets the generator used when the statement has no id. Default
// is id.UUID.
func SignID(ids id.ID) SignOption {
	return signOption(func(o *signOptions) error {
		o.ids = ids
		return nil
	})
}

// SignClock sets the clock used when the statement has no timestamp.
// Default is clock.UTC.
func SignClock(c clock.Clock) SignOption {
	return signOption(func(o *signOptions) error {
		o.clock = c
		return nil
	})
}

func methodForKey(pub crypto.PublicKey) (jwt.SigningMethod, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, nil
		case elliptic.P384():
			return jwt.SigningMethodES384, nil
		case elliptic.P521():
			return jwt.SigningMethodES512, nil
		}
	case ed25519.PublicKey:
		return jwt.SigningMethodEdDSA, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
}

// Sign stamps the statement with an id and timestamp when missing,
// signs its canonical (RFC 8785) serialization for version as a compact
// JWS and appends the JWS as a signature attachment.
func (s *Statement) Sign(key crypto.Signer, version Version, opts ...SignOption) error {
	o := signOptions{
		ids:   id.UUID,
		clock: clock.UTC,
	}
	for _, opt := range opts {
		if err := opt.addOption(&o); err != nil {
			return err
		}
	}

	if s.Signature() != nil {
		return ErrAlreadySigned
	}
	if _, err := ParseVersion(string(version)); err != nil {
		return err
	}

	method := o.method
	if method == nil {
		m, err := methodForKey(key.Public())
		if err != nil {
			return err
		}
		method = m
	}

	s.Stamp(o.ids, o.clock)

	payload, err := json.Marshal(s.AsVersion(version))
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	payload, err = jcs.Transform(payload)
	if err != nil {
		return fmt.Errorf("sign: canonicalize: %w", err)
	}

	header := map[string]any{
		"alg": method.Alg(),
	}
	if len(o.certs) > 0 {
		x5c := make([]string, len(o.certs))
		for i, c := range o.certs {
			x5c[i] = base64.StdEncoding.EncodeToString(c.Raw)
		}
		header["x5c"] = x5c
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	signing := segment(hb) + "." + segment(payload)
	sig, err := method.Sign(signing, key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	att := &Attachment{
		UsageType:   SignatureUsageType,
		Display:     NewLanguageMap(map[string]string{"en-US": "Signature"}),
		ContentType: signatureContentType,
	}
	att.SetContent([]byte(signing + "." + segment(sig)))
	s.Attachments = append(s.Attachments, att)
	return nil
}

func segment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

type verifyOptions struct {
	key     crypto.PublicKey
	methods []string
}

type verifyOption func(o *verifyOptions) error

func (f verifyOption) addOption(o *verifyOptions) error {
	return f(o)
}

// VerifyOption models an option when verifying a statement signature.
type VerifyOption interface {
	addOption(o *verifyOptions) error
}

// VerifyKey sets the public key to verify with. Without it, the leaf
// certificate of the x5c header is used.
func VerifyKey(key crypto.PublicKey) VerifyOption {
	return verifyOption(func(o *verifyOptions) error {
		o.key = key
		return nil
	})
}

// VerifyMethods restricts the accepted algorithms. Default is RS256,
// RS384, RS512, ES256, ES384, ES512 and EdDSA.
func VerifyMethods(algs ...string) VerifyOption {
	return verifyOption(func(o *verifyOptions) error {
		o.methods = algs
		return nil
	})
}

var defaultVerifyMethods = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Verify checks the signature attachment cryptographically, then
// compares the signed copy with the statement. An invalid or missing
// signature is an error; a statement that no longer matches its signed
// copy is an unsuccessful Comparison.
func (s *Statement) Verify(opts ...VerifyOption) (Comparison, error) {
	o := verifyOptions{
		methods: defaultVerifyMethods,
	}
	for _, opt := range opts {
		if err := opt.addOption(&o); err != nil {
			return Comparison{}, err
		}
	}

	att := s.Signature()
	if att == nil {
		return Comparison{}, ErrNoSignature
	}
	if !att.HasContent() {
		return Comparison{}, fmt.Errorf("%w: content not attached", ErrNoSignature)
	}
	compact := strings.TrimSpace(string(att.Content()))

	parser := jwt.NewParser(jwt.WithValidMethods(o.methods))
	_, err := parser.Parse(compact, func(t *jwt.Token) (any, error) {
		if o.key != nil {
			return o.key, nil
		}
		return x5cKey(t.Header["x5c"])
	})
	if err != nil {
		return Comparison{}, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}

	segs := strings.Split(compact, ".")
	payload, err := base64.RawURLEncoding.DecodeString(segs[1])
	if err != nil {
		return Comparison{}, fmt.Errorf("%w: payload: %w", ErrMalformedSignature, err)
	}

	var signed Statement
	if err := json.Unmarshal(payload, &signed); err != nil {
		return Comparison{}, fmt.Errorf("%w: payload: %w", ErrMalformedSignature, err)
	}

	return s.CompareWithSignature(&signed), nil
}

func x5cKey(h any) (crypto.PublicKey, error) {
	chain, ok := h.([]any)
	if !ok || len(chain) == 0 {
		return nil, ErrNoVerificationKey
	}
	leaf, ok := chain[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: x5c entry is not a string", ErrNoVerificationKey)
	}
	der, err := base64.StdEncoding.DecodeString(leaf)
	if err != nil {
		return nil, fmt.Errorf("%w: x5c: %w", ErrNoVerificationKey, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: x5c: %w", ErrNoVerificationKey, err)
	}
	return cert.PublicKey, nil
}
