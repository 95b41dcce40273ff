package ccadapter

// Offer is one proposed or negotiated CC algorithm entry, mirroring the
// handshake's per-algorithm fields without depending on the wire package.
type Offer struct {
	Type   uint8
	Params uint32
}

// SelectServer returns every offer the server recognizes, preserving
// the client's preference order, as Server-Hello's "select a subset in
// the same order" requires. Unknown types are skipped rather than
// rejecting the whole handshake.
func SelectServer(offers []Offer, supported map[uint8]bool) []Offer {
	var selected []Offer
	for _, o := range offers {
		if supported[o.Type] {
			selected = append(selected, o)
		}
	}
	return selected
}

// Build constructs the Algorithm for the first selected offer. Connections
// use a single active algorithm at a time; additional entries in a
// Connection-Handshake are alternatives the peer may fall back to, not a
// composite of several running simultaneously.
func Build(selected []Offer) Algorithm {
	if len(selected) == 0 {
		return newNone()
	}
	return New(selected[0].Type, selected[0].Params)
}
