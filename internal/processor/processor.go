// Package processor предоставляет клиенты внешнего платёжного провайдера.
package processor

import "errors"

var (
	// ErrOutcomeUnknown означает, что провайдер не дал определённого ответа (таймаут, обрыв, 5xx).
	// Операцию нельзя считать ни успешной, ни отклонённой до сверки с провайдером.
	ErrOutcomeUnknown = errors.New("processor outcome unknown")
	// ErrRejected означает, что провайдер определённо отклонил операцию.
	ErrRejected = errors.New("processor rejected request")
	// ErrNotConfigured возвращается клиентом без адреса или ключа.
	ErrNotConfigured = errors.New("processor client not configured")
)
