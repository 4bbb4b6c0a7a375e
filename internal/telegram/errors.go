package telegram

import (
	"errors"
	"time"

	"github.com/go-telegram/bot"

	"tg_relay/internal/relay"
)

// 限流响应未带 retry_after 时的兜底等待时间
const defaultRetryAfter = 5 * time.Second

// classifyForwardError maps a Bot API error onto the engine's error taxonomy.
// Rate-limit responses become Throttled with the mandated wait; permission and
// bad-request failures are Permanent; an invalid token is Fatal; everything
// else is assumed Transient and retried.
func classifyForwardError(err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		retryAfter := time.Duration(tooMany.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return relay.NewThrottledError(retryAfter, err)
	}

	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return relay.NewPermanentError(err)
	}

	switch {
	case errors.Is(err, bot.ErrorUnauthorized):
		return relay.NewFatalError(err)
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorNotFound):
		return relay.NewPermanentError(err)
	}

	return relay.NewTransientError(err)
}

// isUnauthorized reports whether err means the bot token is invalid.
func isUnauthorized(err error) bool {
	return errors.Is(err, bot.ErrorUnauthorized)
}

// isEntityLookupFailure reports whether err means the chat cannot be resolved
// (missing, inaccessible, or a malformed reference).
func isEntityLookupFailure(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorNotFound) ||
		errors.Is(err, bot.ErrorForbidden)
}
