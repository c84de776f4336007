package notification

import (
	"context"
	"io"
	"log"
	"regexp"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/fallguard/internal/errors"
)

// ShoutrrrProvider sends through one sender covering every configured URL
// (telegram, ntfy, pushover, smtp and the rest of shoutrrr's services).
type ShoutrrrProvider struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrProvider builds the sender, which validates every URL.
// timeout zero keeps shoutrrr's default.
func NewShoutrrrProvider(urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one shoutrrr URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid shoutrrr URL: %s", redactURLs(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrProvider{urls: slices.Clone(urls), sender: sender}, nil
}

func (s *ShoutrrrProvider) Name() string { return "shoutrrr" }

// Send delivers to every URL and reports the first failure. The router
// applies its own timeout.
func (s *ShoutrrrProvider) Send(_ context.Context, n *Notification) error {
	params := stypes.Params{}
	params.SetTitle(n.Title)
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.Newf("shoutrrr delivery failed: %s", redactURLs(err.Error())).
				Component("notification").
				Category(errors.CategoryNotifier).
				Build()
		}
	}
	return nil
}

var credentialsInURL = regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^@/\s]+@`)

// redactURLs hides tokens and passwords embedded in service URLs.
func redactURLs(s string) string {
	return credentialsInURL.ReplaceAllString(s, "${1}***@")
}
