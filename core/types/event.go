package types

// Event is the wire form of an escrow event: a dotted type such as
// "payment.created" and string attributes (bech32 accounts, decimal amounts).
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or "" when absent.
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
