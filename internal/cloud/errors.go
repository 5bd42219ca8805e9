package cloud

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Typed failure modes surfaced to the sync engine. The engine retries
// nothing itself; only transient transport failures are retried here.
var (
	ErrInvalidCredentials = errors.New("cloud: invalid credentials")
	ErrAuthExpired        = errors.New("cloud: authentication expired")
	ErrServerUnreachable  = errors.New("cloud: server unreachable")
	ErrTLS                = errors.New("cloud: TLS handshake failed")
	ErrBadRequest         = errors.New("cloud: server rejected request")
)

// ServerError carries an unexpected HTTP status from the cloud service
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cloud: server returned HTTP %d: %s", e.Status, e.Body)
}

// classifyTransportError maps a transport-level failure onto the taxonomy
func classifyTransportError(err error) error {
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &authErr) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrServerUnreachable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
}

// isTransient reports whether a failed call may be retried. Authentication
// and validation failures never are.
func isTransient(err error) bool {
	if errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrTLS) {
		return false
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.Status >= 500 || srvErr.Status == 408 || srvErr.Status == 429
	}
	return errors.Is(err, ErrServerUnreachable)
}
