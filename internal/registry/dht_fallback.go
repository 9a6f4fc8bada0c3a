package registry

import "context"

// RendezvousDiscoverer is the capability internal/node's libp2p-kad-dht
// bootstrap exposes (grounded on internal/node/node.go's routing-discovery
// setup). It is an additive discovery path only — it can turn up more
// candidate URLs, but never substitutes for the HTTP envelope signature
// check every URL still has to pass in fetchAndVerify.
type RendezvousDiscoverer interface {
	FindPeersByRendezvous(ctx context.Context, rendezvous string) ([]string, error)
}

// DiscoverWithFallback behaves like Discover, but if the HTTP registry
// source cannot be reached and a RendezvousDiscoverer was supplied, it
// additionally includes any LP URLs found via DHT rendezvous before
// verifying envelopes. Off by default: callers must pass a non-nil
// discoverer to opt in.
func (r *Registry) DiscoverWithFallback(ctx context.Context, sourceURL string, overrideURLs []string, rendezvous string, fallback RendezvousDiscoverer) ([]*Intermediary, error) {
	urls := overrideURLs
	if len(urls) == 0 {
		list, err := r.client.FetchSourceList(ctx, sourceURL)
		if err != nil {
			if fallback == nil {
				return nil, err
			}
			r.log.Warn("registry source unreachable, falling back to DHT rendezvous", "error", err)
			found, ferr := fallback.FindPeersByRendezvous(ctx, rendezvous)
			if ferr != nil {
				return nil, ferr
			}
			urls = found
		} else {
			urls = list
		}
	}
	return r.Discover(ctx, "", urls)
}
