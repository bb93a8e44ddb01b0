package xapi

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const mailtoScheme = "mailto:"

// AgentAccount identifies an agent by an account on a system.
type AgentAccount struct {
	HomePage string `json:"homePage,omitempty"`
	Name     string `json:"name,omitempty"`
}

func (a *AgentAccount) AsVersion(v Version) map[string]any {
	if a == nil {
		return nil
	}
	f := fields{}
	f.str("homePage", a.HomePage)
	f.str("name", a.Name)
	return f
}

func (a *AgentAccount) CompareWithSignature(fromSig *AgentAccount) Comparison {
	return compareProperties(nil,
		stringProp("homePage", a.HomePage, fromSig.HomePage),
		stringProp("name", a.Name, fromSig.Name),
	)
}

// Agent is an individual identified by one inverse functional
// identifier: an account, an mbox digest, an mbox or an openid. When more
// than one is set, only the first in that order is written.
type Agent struct {
	Name        string        `json:"name,omitempty"`
	Mbox        string        `json:"mbox,omitempty"`
	MboxSHA1Sum string        `json:"mbox_sha1sum,omitempty"`
	OpenID      string        `json:"openid,omitempty"`
	Account     *AgentAccount `json:"account,omitempty"`
}

func (*Agent) ObjectType() ObjectType {
	return ObjectTypeAgent
}

// MboxIRI returns the mbox with the mailto scheme, adding it when the
// address was given bare.
func (a *Agent) MboxIRI() string {
	return mboxIRI(a.Mbox)
}

func mboxIRI(s string) string {
	if s == "" || strings.HasPrefix(strings.ToLower(s), mailtoScheme) {
		return s
	}
	return mailtoScheme + s
}

// SHA1Sum returns the mbox digest, computing it from the mbox when no
// digest was set.
func (a *Agent) SHA1Sum() string {
	if a.MboxSHA1Sum != "" {
		return a.MboxSHA1Sum
	}
	if a.Mbox == "" {
		return ""
	}
	sum := sha1.Sum([]byte(a.MboxIRI()))
	return hex.EncodeToString(sum[:])
}

// IsIdentified reports whether any identifier is set.
func (a *Agent) IsIdentified() bool {
	return a.Mbox != "" || a.MboxSHA1Sum != "" || a.OpenID != "" || a.Account != nil
}

func (a *Agent) AsVersion(v Version) map[string]any {
	if a == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypeAgent)}
	a.writeIdentity(f, v)
	return f
}

func (a *Agent) writeIdentity(f fields, v Version) {
	f.str("name", a.Name)

	// An account with nothing set does not count.
	if acct := a.Account.AsVersion(v); len(acct) > 0 {
		f["account"] = acct
		return
	}
	switch {
	case a.MboxSHA1Sum != "":
		f["mbox_sha1sum"] = a.MboxSHA1Sum
	case a.Mbox != "":
		f["mbox"] = a.MboxIRI()
	case a.OpenID != "":
		f["openid"] = a.OpenID
	}
}

// CompareWithSignature matches identifiers. An mbox on one side and an
// mbox digest on the other are compared by digest; the name is ignored.
func (a *Agent) CompareWithSignature(fromSig *Agent) Comparison {
	thisMbox, sigMbox := a.MboxIRI(), fromSig.MboxIRI()

	switch {
	case thisMbox != "" && fromSig.MboxSHA1Sum != "":
		if strings.EqualFold(a.SHA1Sum(), fromSig.MboxSHA1Sum) {
			return matched
		}
		return mismatch("Comparison of this.mbox to signature.mbox_sha1sum failed: no match")
	case sigMbox != "" && a.MboxSHA1Sum != "":
		if strings.EqualFold(fromSig.SHA1Sum(), a.MboxSHA1Sum) {
			return matched
		}
		return mismatch("Comparison of this.mbox_sha1sum to signature.mbox failed: no match")
	}

	ifis := []struct{ name, this, sig string }{
		{"mbox", thisMbox, sigMbox},
		{"mbox_sha1sum", a.MboxSHA1Sum, fromSig.MboxSHA1Sum},
		{"openid", a.OpenID, fromSig.OpenID},
	}
	for _, ifi := range ifis {
		if ifi.this != ifi.sig {
			return mismatch("Comparison of %s failed: value is not the same", ifi.name)
		}
	}

	return compareProperties(nil,
		objectProp("account", a.Account, fromSig.Account),
	)
}

func (a *Agent) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.AsVersion(LatestVersion))
}

// Group is a set of agents. An identified group carries its own
// identifier; an anonymous group is known only by its members.
type Group struct {
	Agent
	Member []*Agent `json:"member,omitempty"`
}

func (*Group) ObjectType() ObjectType {
	return ObjectTypeGroup
}

func (g *Group) AsVersion(v Version) map[string]any {
	if g == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypeGroup)}
	g.writeIdentity(f, v)
	putList(f, "member", g.Member, v)
	return f
}

// CompareWithSignature compares identifiers when either side is
// identified, otherwise the member lists position by position.
func (g *Group) CompareWithSignature(fromSig *Group) Comparison {
	if g.IsIdentified() || fromSig.IsIdentified() {
		return g.Agent.CompareWithSignature(&fromSig.Agent)
	}

	if len(g.Member) != len(fromSig.Member) {
		return mismatch("Comparison of member list failed: array lengths differ")
	}
	for i := range g.Member {
		this, sig := g.Member[i], fromSig.Member[i]
		if res := compareElement(this, sig); !res.Success {
			return mismatch("Comparison of member %d failed: %s", i, res.Reason)
		}
	}
	return matched
}

func (g *Group) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.AsVersion(LatestVersion))
}

func (g *Group) UnmarshalJSON(b []byte) error {
	type group Group
	var raw group
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := noNulls("member", raw.Member); err != nil {
		return err
	}
	*g = Group(raw)
	return nil
}
