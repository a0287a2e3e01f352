package scraper

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials is returned when the portal rejects the username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAutomationBlocked is the portal refusing the login as non-trusted/automated
	// traffic. It matches ErrInvalidCredentials as well.
	ErrAutomationBlocked = fmt.Errorf("%w: login blocked as coming from a non-trusted domain", ErrInvalidCredentials)
	// ErrProtocol means an expected cookie, token or payload was missing, which
	// usually means the portal changed its login flow or page shape.
	ErrProtocol = errors.New("unexpected portal response")
	// ErrUpstreamUnavailable covers network failures, timeouts and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("portal unavailable")
)
