/*
Package xapi is a client core for the Experience API (xAPI, formerly Tin
Can): the statement entity graph, its versioned JSON form, signature
comparison and multipart attachment handling.

Statements

A statement is built from plain structs. Objects and actors are sealed
interfaces so only the variants defined here can be used.

	s := &xapi.Statement{
		StatementBase: xapi.StatementBase{
			Actor:  &xapi.Agent{Mbox: "mailto:learner@example.com"},
			Verb:   &xapi.Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"},
			Object: &xapi.Activity{ID: "http://example.com/activities/a"},
		},
	}

AsVersion returns the JSON-ready form for a protocol version. Optional
properties that are unset or empty are omitted and an agent carries a
single identifier, chosen by precedence account, mbox_sha1sum, mbox, openid.

	m := s.AsVersion(xapi.LatestVersion)

Signatures

Sign appends a JWS signature attachment. Verify checks the JWS and then
compares the statement with the signed copy, reporting the first
mismatching property.

	err := s.Sign(key, xapi.LatestVersion)
	res, err := s.Verify(xapi.VerifyKey(pub))
	if !res.Success {
		fmt.Println(res.Reason)
	}

Attachments

EncodeMultipart builds a multipart/mixed body from a statement payload and
its attachments, sending content shared by hash once. DecodeMultipart and
AttachContent reverse it, matching parts to attachments by their
X-Experience-API-Hash header regardless of order.

Record stores

RemoteLRS talks to a record store over HTTP. Store persists statements on
a NATS JetStream stream.

	lrs, err := xapi.NewRemoteLRS("https://lrs.example.com/xapi/",
		xapi.WithBasicAuth("key", "secret"),
	)
	_, err = lrs.SaveStatement(ctx, s)

Concurrency

Entity values are plain data and are not safe for concurrent mutation.
Callers that share a statement between goroutines must synchronize. A
RemoteLRS and a Store are safe for concurrent use once created.
*/
package xapi
