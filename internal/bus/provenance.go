package bus

// Provenance is caller metadata (actor_id, layer, source, requester, ...)
// carried onto the events and commands a resolution produces.
type Provenance map[string]any

// Merge returns a copy of payload with every provenance key set on it.
// Provenance wins over payload keys of the same name.
func (p Provenance) Merge(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+len(p))
	for k, v := range payload {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Pick returns the subset of p named by keys.
func (p Provenance) Pick(keys ...string) Provenance {
	out := Provenance{}
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}
