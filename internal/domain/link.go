package domain

import "encoding/json"

// Endpoint identifies one end of a link.
//
// Links coming out of the data service carry bare node ids. The layout engine
// resolves endpoints into its own bodies exactly once when it binds a graph,
// so nothing downstream of binding ever inspects an Endpoint again.
type Endpoint struct {
	ID string
}

// EndpointOf builds an endpoint for a node id
func EndpointOf(id string) Endpoint {
	return Endpoint{ID: NormalizeAddress(id)}
}

// MarshalJSON encodes the endpoint as its bare id
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ID)
}

// UnmarshalJSON accepts either a bare id or an object carrying an "id" field
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.ID = NormalizeAddress(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = NormalizeAddress(obj.ID)
	return nil
}

// MarshalYAML encodes the endpoint as its bare id
func (e Endpoint) MarshalYAML() (interface{}, error) {
	return e.ID, nil
}

// VouchLink is one vouching event between two accounts
type VouchLink struct {
	Source    Endpoint `json:"source" yaml:"source"`
	Target    Endpoint `json:"target" yaml:"target"`
	Value     string   `json:"value" yaml:"value"`
	RawAmount string   `json:"rawAmount" yaml:"raw_amount"`
	Timestamp int64    `json:"timestamp" yaml:"timestamp"`
}

// NewVouchLink creates a link from a voucher to a recipient
func NewVouchLink(source, target, rawAmount string, timestamp int64) VouchLink {
	return VouchLink{
		Source:    EndpointOf(source),
		Target:    EndpointOf(target),
		Value:     FormatAmount(rawAmount),
		RawAmount: rawAmount,
		Timestamp: timestamp,
	}
}

// Touches reports whether the link has id as either endpoint
func (l VouchLink) Touches(id string) bool {
	return l.Source.ID == id || l.Target.ID == id
}

// UnmarshalYAML accepts a bare id
func (e *Endpoint) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var id string
	if err := unmarshal(&id); err != nil {
		return err
	}
	e.ID = NormalizeAddress(id)
	return nil
}
