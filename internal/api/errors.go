package api

import (
	"errors"
	"net/http"

	"github.com/abhisek/deeplearn/internal/assistant"
	"github.com/abhisek/deeplearn/internal/discussion"
	"github.com/abhisek/deeplearn/internal/ledger"
	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/quizfeedback"
	"github.com/abhisek/deeplearn/internal/store"
	"github.com/abhisek/deeplearn/internal/submission"
)

var validationErrors = []error{
	submission.ErrEmptyCode,
	assistant.ErrEmptyQuestion,
	assistant.ErrQuestionTooLong,
	discussion.ErrEmptyTitle,
	discussion.ErrEmptyContent,
	discussion.ErrTooLong,
}

// statusOf maps a service error to an HTTP status and a client message.
func statusOf(err error) (int, string) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, target.Error()
		}
	}

	var (
		txErr       *ledger.TxError
		oracleErr   *submission.OracleError
		rateErr     *llm.ErrRateLimit
		circuitErr  *llm.ErrCircuitOpen
		invalidErr  *llm.ErrInvalidResponse
		unavailable *llm.ErrProviderUnavailable
		truncated   *llm.ErrMaxTokensExceeded
		rejected    *llm.ErrRequestRejected
	)
	switch {
	case errors.Is(err, ledger.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, submission.ErrUnknownProject):
		return http.StatusNotFound, "unknown project"
	case errors.Is(err, quizfeedback.ErrUnknownQuiz):
		return http.StatusNotFound, "unknown quiz"
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, "profile already exists"
	case errors.As(err, &txErr):
		return http.StatusServiceUnavailable, "progress update failed, please retry"
	case errors.As(err, &circuitErr), errors.Is(err, assistant.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI service temporarily unavailable"
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, "AI service is rate limited, please retry later"
	case errors.As(err, &oracleErr):
		return http.StatusBadGateway, "grading failed, please resubmit"
	case errors.As(err, &invalidErr), errors.As(err, &unavailable),
		errors.As(err, &truncated), errors.As(err, &rejected):
		return http.StatusBadGateway, "AI service error"
	}
	return http.StatusInternalServerError, "internal server error"
}
