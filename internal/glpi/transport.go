package glpi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// transport executes authenticated calls. A call rejected for an invalid
// session is retried once with a fresh token. Idempotent reads are also
// retried once on a network failure or a 5xx reply; writes never are.
type transport struct {
	client   *Client
	sessions *SessionCache
	logger   *slog.Logger
}

func (t *transport) call(ctx context.Context, req request, out interface{}) (http.Header, error) {
	authRetried := false
	readRetried := false
	for {
		token, err := t.sessions.Token(ctx)
		if err != nil {
			return nil, err
		}

		hdr, err := t.client.do(ctx, token, req, out)
		if err == nil {
			return hdr, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		if sessionRejected(err) && !authRetried {
			authRetried = true
			t.sessions.Invalidate(token)
			t.logger.Info("session token rejected, re-authenticating", slog.String("op", req.op))
			continue
		}
		if req.idempotent() && !readRetried && transient(err) {
			readRetried = true
			t.logger.Warn("retrying read after transient failure", slog.String("op", req.op), slog.Any("error", err))
			continue
		}
		return hdr, err
	}
}

func sessionRejected(err error) bool {
	return remoteStatus(err) == http.StatusUnauthorized || remoteCode(err) == codeSessionTokenInvalid
}

func transient(err error) bool {
	if !errors.Is(err, domain.ErrGateway) {
		return false
	}
	status := remoteStatus(err)
	return status == 0 || status >= 500
}
