package fetch

import "time"

// Observer receives fetcher events. The fetcher itself neither logs nor
// records metrics; callers plug those in here.
type Observer interface {
	CacheHit(url string)
	CacheMiss(url string)
	// Upstream is called once per network attempt that produced a status.
	Upstream(url string, status int, elapsed time.Duration)
	// Retry is called before waiting delay ahead of attempt number attempt+1.
	Retry(url string, attempt int, delay time.Duration)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) CacheHit(string)                     {}
func (NoopObserver) CacheMiss(string)                    {}
func (NoopObserver) Upstream(string, int, time.Duration) {}
func (NoopObserver) Retry(string, int, time.Duration)    {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NoopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiObserver) CacheHit(url string) {
	for _, o := range m {
		o.CacheHit(url)
	}
}

func (m multiObserver) CacheMiss(url string) {
	for _, o := range m {
		o.CacheMiss(url)
	}
}

func (m multiObserver) Upstream(url string, status int, elapsed time.Duration) {
	for _, o := range m {
		o.Upstream(url, status, elapsed)
	}
}

func (m multiObserver) Retry(url string, attempt int, delay time.Duration) {
	for _, o := range m {
		o.Retry(url, attempt, delay)
	}
}
