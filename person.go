package xapi

import (
	"encoding/json"
)

// Person combines every identifier a store knows for one individual, so
// each identifier property holds a list.
type Person struct {
	Name        []string        `json:"name,omitempty"`
	Mbox        []string        `json:"mbox,omitempty"`
	MboxSHA1Sum []string        `json:"mbox_sha1sum,omitempty"`
	OpenID      []string        `json:"openid,omitempty"`
	Account     []*AgentAccount `json:"account,omitempty"`
}

func (*Person) ObjectType() ObjectType {
	return ObjectTypePerson
}

func (p *Person) AsVersion(v Version) map[string]any {
	if p == nil {
		return nil
	}
	f := fields{"objectType": string(ObjectTypePerson)}
	f.strs("name", p.Name)
	putList(f, "account", p.Account, v)
	f.strs("mbox_sha1sum", p.MboxSHA1Sum)
	f.strs("mbox", p.Mbox)
	f.strs("openid", p.OpenID)
	return f
}

// Agents returns one agent per identifier, named with the first name.
func (p *Person) Agents() []*Agent {
	var name string
	if len(p.Name) > 0 {
		name = p.Name[0]
	}
	var out []*Agent
	for _, a := range p.Account {
		if a == nil {
			continue
		}
		acct := *a
		out = append(out, &Agent{Name: name, Account: &acct})
	}
	for _, s := range p.MboxSHA1Sum {
		out = append(out, &Agent{Name: name, MboxSHA1Sum: s})
	}
	for _, m := range p.Mbox {
		out = append(out, &Agent{Name: name, Mbox: m})
	}
	for _, o := range p.OpenID {
		out = append(out, &Agent{Name: name, OpenID: o})
	}
	return out
}

func (p *Person) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.AsVersion(LatestVersion))
}

// About describes a store: the versions it speaks and any extensions.
type About struct {
	Version    []string   `json:"version"`
	Extensions Extensions `json:"extensions"`
}

func (a *About) AsVersion(v Version) map[string]any {
	if a == nil {
		return nil
	}
	f := fields{}
	f.strs("version", a.Version)
	f.sub("extensions", a.Extensions.AsVersion(v))
	return f
}

// Negotiate returns the newest version both sides support.
func (a *About) Negotiate() (Version, error) {
	return NegotiateVersion(a.Version)
}

func (a *About) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.AsVersion(LatestVersion))
}
