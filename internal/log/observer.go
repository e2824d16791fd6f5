package log

import (
	"net/http"
	"time"

	"github.com/apex/log"
)

// FetchObserver logs fetcher events. Cache traffic goes to debug; upstream
// failures and retries are worth seeing at the default level.
type FetchObserver struct {
	Logger log.Interface
}

func NewFetchObserver(logger log.Interface) *FetchObserver {
	if logger == nil {
		logger = log.Log
	}
	return &FetchObserver{Logger: logger}
}

func (o *FetchObserver) CacheHit(url string) {
	o.Logger.WithField("url", url).Debug("cache hit")
}

func (o *FetchObserver) CacheMiss(url string) {
	o.Logger.WithField("url", url).Debug("cache miss")
}

func (o *FetchObserver) Upstream(url string, status int, elapsed time.Duration) {
	entry := o.Logger.WithFields(log.Fields{
		"url":     url,
		"status":  status,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	})
	switch {
	case status == http.StatusTooManyRequests:
		entry.Warn("upstream rate limited")
	case status >= http.StatusBadRequest:
		entry.Warn("upstream error")
	default:
		entry.Debug("upstream")
	}
}

func (o *FetchObserver) Retry(url string, attempt int, delay time.Duration) {
	o.Logger.WithFields(log.Fields{
		"url":     url,
		"attempt": attempt + 1,
		"delay":   delay.String(),
	}).Info("retrying after backoff")
}
