package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bruth/xapi/clock"
	"github.com/bruth/xapi/codec"
	"github.com/bruth/xapi/id"
)

const (
	recordCodecHdr   = "Xapi-Record-Codec"
	recordVersionHdr = "Xapi-Version"
	recordStoredHdr  = "Xapi-Stored"
	contentTypeHdr   = "Xapi-Content-Type"
)

var (
	ErrStatementConflict = errors.New("xapi: statement already stored")
	ErrStatementNotFound = errors.New("xapi: statement not found")
)

type storeOption func(o *Store) error

func (f storeOption) addOption(o *Store) error {
	return f(o)
}

// StoreOption models an option when creating a Store.
type StoreOption interface {
	addOption(o *Store) error
}

// StoreCodec sets the codec statement records are encoded with. Default
// is json.
func StoreCodec(name string) StoreOption {
	return storeOption(func(o *Store) error {
		c, err := codec.Get(name)
		if err != nil {
			return err
		}
		if c == codec.Binary {
			return fmt.Errorf("xapi: codec %q cannot encode statements", name)
		}
		o.codec = c
		return nil
	})
}

// StoreVersion sets the version statements are serialized with. Default
// is LatestVersion.
func StoreVersion(v Version) StoreOption {
	return storeOption(func(o *Store) error {
		pv, err := ParseVersion(string(v))
		if err != nil {
			return err
		}
		o.version = pv
		return nil
	})
}

// StoreClock sets the clock used for stored timestamps. Default is
// clock.UTC.
func StoreClock(c clock.Clock) StoreOption {
	return storeOption(func(o *Store) error {
		o.clock = c
		return nil
	})
}

// StoreID sets the statement id generator. Default is id.UUID.
func StoreID(ids id.ID) StoreOption {
	return storeOption(func(o *Store) error {
		o.id = ids
		return nil
	})
}

// StoreLogger sets a logger. Nothing is logged by default.
func StoreLogger(l *slog.Logger) StoreOption {
	return storeOption(func(o *Store) error {
		o.logger = l
		return nil
	})
}

// StoreConfig is the subset of nats.StreamConfig a statement store
// exposes.
type StoreConfig struct {
	// Description associated with the store.
	Description string
	// Storage for the stream.
	Storage nats.StorageType
	// Replicas of the stream.
	Replicas int
	// Placement of the stream replicas.
	Placement *nats.Placement
}

// Store persists statements on a JetStream stream. Statements live on
// <name>.statements.<id>, attachment content on <name>.attachments.<sha2>.
type Store struct {
	name string
	nc   *nats.Conn
	js   nats.JetStreamContext

	codec   codec.Codec
	version Version
	clock   clock.Clock
	id      id.ID
	logger  *slog.Logger
}

// NewStore returns a store over the stream called name. The stream is
// not created; see Create.
func NewStore(nc *nats.Conn, name string, opts ...StoreOption) (*Store, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	s := &Store{
		name:    name,
		nc:      nc,
		js:      js,
		codec:   codec.Default,
		version: LatestVersion,
		clock:   clock.UTC,
		id:      id.UUID,
	}

	for _, o := range opts {
		if err := o.addOption(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) statementSubject(id string) string {
	return fmt.Sprintf("%s.statements.%s", s.name, id)
}

func (s *Store) attachmentSubject(sha2 string) string {
	return fmt.Sprintf("%s.attachments.%s", s.name, sha2)
}

// Create creates the backing stream. Records can neither be deleted nor
// purged.
func (s *Store) Create(config *StoreConfig) error {
	if config == nil {
		config = &StoreConfig{}
	}
	_, err := s.js.AddStream(&nats.StreamConfig{
		Name:        s.name,
		Description: config.Description,
		Subjects: []string{
			s.statementSubject("*"),
			s.attachmentSubject("*"),
		},
		Storage:    config.Storage,
		Replicas:   config.Replicas,
		Placement:  config.Placement,
		DenyDelete: true,
		DenyPurge:  true,
	})
	return err
}

// Delete deletes the backing stream.
func (s *Store) Delete() error {
	return s.js.DeleteStream(s.name)
}

// SaveStatement validates st, assigns an id, version and stored time and
// publishes it along with its attachment content. It returns the stream
// sequence of the statement record. Statements are immutable: saving an
// id twice returns ErrStatementConflict. st is only updated once the
// record is stored. Content published before losing a concurrent race for
// the same id stays on the stream, where it is shared by hash.
func (s *Store) SaveStatement(ctx context.Context, st *Statement) (uint64, error) {
	if err := st.Validate(); err != nil {
		return 0, err
	}
	if st.ID != "" {
		if err := s.checkAbsent(ctx, st.ID); err != nil {
			return 0, err
		}
	}

	rec := *st
	stored := s.clock.Now()
	rec.Stamp(s.id, clock.Func(func() time.Time { return stored }))
	rec.Stored = formatTime(stored)
	if rec.Version == "" {
		rec.Version = s.version
	}

	seq, n, err := s.publish(ctx, &rec)
	if err != nil {
		return 0, err
	}
	st.ID = rec.ID
	st.Timestamp = rec.Timestamp
	st.Stored = rec.Stored
	st.Version = rec.Version

	if s.logger != nil {
		s.logger.Debug("statement stored",
			slog.String("id", st.ID),
			slog.Uint64("seq", seq),
			slog.Int("attachments", n),
		)
	}
	return seq, nil
}

// checkAbsent returns ErrStatementConflict when id is already stored.
func (s *Store) checkAbsent(ctx context.Context, id string) error {
	_, err := s.js.GetLastMsg(s.name, s.statementSubject(id), nats.Context(ctx))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrStatementConflict, id)
	case errors.Is(err, nats.ErrMsgNotFound):
		return nil
	}
	return err
}

// publish writes the attachment content and then the statement record. It
// returns the record's sequence and the number of content messages.
func (s *Store) publish(ctx context.Context, st *Statement) (uint64, int, error) {
	seen := make(map[string]struct{})
	for _, a := range st.Attachments {
		if !a.HasContent() {
			continue
		}
		if _, ok := seen[a.SHA2]; ok {
			continue
		}
		seen[a.SHA2] = struct{}{}
		if err := s.saveContent(ctx, a); err != nil {
			return 0, 0, err
		}
	}

	data, err := s.codec.Marshal(st.AsVersion(s.version))
	if err != nil {
		return 0, 0, fmt.Errorf("save statement: %w", err)
	}

	msg := nats.NewMsg(s.statementSubject(st.ID))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, st.ID)
	msg.Header.Set(recordCodecHdr, s.codec.Name())
	msg.Header.Set(recordVersionHdr, string(s.version))
	msg.Header.Set(recordStoredHdr, st.Stored)

	ack, err := s.js.PublishMsg(msg,
		nats.Context(ctx),
		nats.ExpectStream(s.name),
		nats.ExpectLastSequencePerSubject(0),
	)
	if err != nil {
		if strings.Contains(err.Error(), "wrong last sequence") {
			return 0, 0, fmt.Errorf("%w: %s", ErrStatementConflict, st.ID)
		}
		return 0, 0, err
	}
	// A duplicate within the dedup window is acked without being stored.
	if ack.Duplicate {
		return 0, 0, fmt.Errorf("%w: %s", ErrStatementConflict, st.ID)
	}

	return ack.Sequence, len(seen), nil
}

// saveContent stores content once per hash. Content already on the
// stream is left as is.
func (s *Store) saveContent(ctx context.Context, a *Attachment) error {
	data, err := codec.Binary.Marshal(a.Content())
	if err != nil {
		return err
	}

	msg := nats.NewMsg(s.attachmentSubject(a.SHA2))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, a.SHA2)
	msg.Header.Set(contentTypeHdr, a.ContentType)

	_, err = s.js.PublishMsg(msg,
		nats.Context(ctx),
		nats.ExpectStream(s.name),
		nats.ExpectLastSequencePerSubject(0),
	)
	if err != nil && !strings.Contains(err.Error(), "wrong last sequence") {
		return fmt.Errorf("save attachment %s: %w", a.SHA2, err)
	}
	return nil
}

// RetrieveStatement fetches a statement by id with its attachment
// content.
func (s *Store) RetrieveStatement(ctx context.Context, id string) (*Statement, error) {
	if err := validateUUID(id); err != nil {
		return nil, err
	}

	msg, err := s.js.GetLastMsg(s.name, s.statementSubject(id), nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrMsgNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStatementNotFound, id)
		}
		return nil, err
	}

	st, err := s.decodeStatement(msg.Header, msg.Data)
	if err != nil {
		return nil, err
	}
	if err := s.loadContent(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) loadContent(ctx context.Context, st *Statement) error {
	for _, a := range st.Attachments {
		if a.SHA2 == "" {
			continue
		}
		msg, err := s.js.GetLastMsg(s.name, s.attachmentSubject(a.SHA2), nats.Context(ctx))
		if err != nil {
			if errors.Is(err, nats.ErrMsgNotFound) {
				if a.FileURL != "" {
					continue
				}
				return fmt.Errorf("%w: %s", ErrAttachmentNotFound, a.SHA2)
			}
			return err
		}
		var b []byte
		if err := codec.Binary.Unmarshal(msg.Data, &b); err != nil {
			return err
		}
		a.SetContent(b)
	}
	return nil
}

// decodeStatement decodes a record into its JSON shape first so every
// codec goes through the same statement decoding.
func (s *Store) decodeStatement(h nats.Header, data []byte) (*Statement, error) {
	name := h.Get(recordCodecHdr)
	c, err := codec.Get(name)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}

	var st Statement
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	return &st, nil
}

type loadOpts struct {
	afterSeq *uint64
}

type loadOption func(o *loadOpts) error

func (f loadOption) loadOpt(o *loadOpts) error {
	return f(o)
}

// LoadOption is an option for Statements.
type LoadOption interface {
	loadOpt(o *loadOpts) error
}

// AfterSequence only loads statements stored after the stream sequence
// seq, typically the sequence returned by a previous load.
func AfterSequence(seq uint64) LoadOption {
	return loadOption(func(o *loadOpts) error {
		o.afterSeq = &seq
		return nil
	})
}

type natsAPIError struct {
	Code        int    `json:"code"`
	ErrCode     uint16 `json:"err_code"`
	Description string `json:"description"`
}

type natsGetMsgRequest struct {
	LastBySubject string `json:"last_by_subj"`
}

type natsGetMsgResponse struct {
	Type    string         `json:"type"`
	Error   *natsAPIError  `json:"error"`
	Message *natsStoredMsg `json:"message"`
}

type natsStoredMsg struct {
	Sequence uint64 `json:"seq"`
}

// lastSequence returns the stream sequence of the last message matching
// subject, zero when there is none.
func (s *Store) lastSequence(ctx context.Context, subject string) (uint64, error) {
	rsubject := fmt.Sprintf("$JS.API.STREAM.MSG.GET.%s", s.name)

	data, _ := json.Marshal(&natsGetMsgRequest{
		LastBySubject: subject,
	})

	msg, err := s.nc.RequestWithContext(ctx, rsubject, data)
	if err != nil {
		return 0, err
	}

	var rep natsGetMsgResponse
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return 0, err
	}

	if rep.Error != nil {
		if rep.Error.Code == 404 {
			return 0, nil
		}
		return 0, fmt.Errorf("%s (%d)", rep.Error.Description, rep.Error.Code)
	}
	return rep.Message.Sequence, nil
}

// Statements loads stored statements in stream order along with the
// sequence of the last one. Attachment content is not loaded.
func (s *Store) Statements(ctx context.Context, opts ...LoadOption) ([]*Statement, uint64, error) {
	var o loadOpts
	for _, opt := range opts {
		if err := opt.loadOpt(&o); err != nil {
			return nil, 0, err
		}
	}

	subject := s.statementSubject("*")
	last, err := s.lastSequence(ctx, subject)
	if err != nil {
		return nil, 0, err
	}
	if last == 0 {
		return nil, 0, nil
	}

	sopts := []nats.SubOpt{
		nats.OrderedConsumer(),
	}
	if o.afterSeq != nil {
		if last <= *o.afterSeq {
			return nil, *o.afterSeq, nil
		}
		sopts = append(sopts, nats.StartSequence(*o.afterSeq+1))
	} else {
		sopts = append(sopts, nats.DeliverAll())
	}

	sub, err := s.js.SubscribeSync(subject, sopts...)
	if err != nil {
		return nil, 0, err
	}
	defer sub.Unsubscribe()

	var stmts []*Statement
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, 0, err
		}
		md, err := msg.Metadata()
		if err != nil {
			return nil, 0, fmt.Errorf("load: failed to get metadata: %w", err)
		}

		st, err := s.decodeStatement(msg.Header, msg.Data)
		if err != nil {
			return nil, 0, err
		}
		stmts = append(stmts, st)

		if md.Sequence.Stream >= last || md.NumPending == 0 {
			return stmts, md.Sequence.Stream, nil
		}
	}
}
