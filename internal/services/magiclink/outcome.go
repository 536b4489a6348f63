package magiclink

import (
	"errors"
	"fmt"
	"net/url"
)

const refreshTokenParam = "refresh_token"

type OutcomeKind int

const (
	// OutcomeSuccess redirects to the success URL carrying the refresh token.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeErrorRedirect redirects to the configured error URL.
	OutcomeErrorRedirect
	// OutcomeUnauthorized is an authorization failure returned to the caller.
	OutcomeUnauthorized
	// OutcomeInternal is an infrastructure failure returned to the caller.
	OutcomeInternal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeErrorRedirect:
		return "error_redirect"
	case OutcomeUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Outcome is the response decided for one exchange. Location is set for the
// redirect kinds; Err keeps the cause for server-side logging only.
type Outcome struct {
	Kind     OutcomeKind
	Location string
	Err      error
}

// Redirects holds the deployment redirect targets. Error may be nil, in
// which case failures are reported to the caller instead of redirected.
type Redirects struct {
	Success *url.URL
	Error   *url.URL
}

// NewRedirects parses the redirect targets. success is required and must be
// absolute; errorURL is optional.
func NewRedirects(success, errorURL string) (Redirects, error) {
	const op = "magiclink.NewRedirects"

	successURL, err := parseAbsolute(success)
	if err != nil {
		return Redirects{}, fmt.Errorf("%s: success url: %w", op, err)
	}

	r := Redirects{Success: successURL}
	if errorURL != "" {
		r.Error, err = parseAbsolute(errorURL)
		if err != nil {
			return Redirects{}, fmt.Errorf("%s: error url: %w", op, err)
		}
	}

	return r, nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	return u, nil
}

// Resolve maps the result of MagicLink.Exchange to an Outcome.
func (r Redirects) Resolve(exchange *Exchange, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeSuccess, Location: r.successLocation(exchange.RefreshToken)}
	case errors.Is(err, ErrInvalidTicket), errors.Is(err, ErrInvalidToken):
		return r.fail(OutcomeUnauthorized, err)
	case errors.Is(err, ErrActivationFailed):
		return r.fail(OutcomeInternal, err)
	default:
		return Outcome{Kind: OutcomeInternal, Err: err}
	}
}

// fail redirects to the error URL when one is configured, and otherwise
// reports the failure as fallback.
func (r Redirects) fail(fallback OutcomeKind, err error) Outcome {
	if r.Error != nil {
		return Outcome{Kind: OutcomeErrorRedirect, Location: r.Error.String(), Err: err}
	}
	return Outcome{Kind: fallback, Err: err}
}

func (r Redirects) successLocation(refreshToken string) string {
	u := *r.Success
	q := u.Query()
	q.Set(refreshTokenParam, refreshToken)
	u.RawQuery = q.Encode()
	return u.String()
}
