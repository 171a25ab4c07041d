package listings

import (
	"math/rand"
	"sync"
)

// Presentation metadata rotated per request. This is request shaping toward
// the listings source, not a correctness concern.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.35",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.35",
	"Mozilla/5.0 (Windows NT 6.3; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.35",
	"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36 Edg/113.0.1774.35",
	"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/113.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 6.3; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
}

var referers = []string{
	"https://www.google.com/",
	"https://ogs.google.com/",
	"", // empty means "refer to the page itself"
}

type headerPool struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newHeaderPool(seed int64) *headerPool {
	return &headerPool{rng: rand.New(rand.NewSource(seed))}
}

// next returns a user-agent and referer pair. selfURL is substituted when the
// rotation lands on the self-referer slot.
func (h *headerPool) next(selfURL string) (userAgent, referer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userAgent = userAgents[h.rng.Intn(len(userAgents))]
	referer = referers[h.rng.Intn(len(referers))]
	if referer == "" {
		referer = selfURL
	}
	return userAgent, referer
}
