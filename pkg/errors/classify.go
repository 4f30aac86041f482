package errors

import "net/http"

// Outcome is the externally visible result of a failed operation.
type Outcome struct {
	Kind    Kind
	Status  int
	Message string
}

// Messages holds the client-facing text for outcomes whose internal error
// message is not exposed.
type Messages struct {
	Conflict string
	NotFound string
	Internal string
}

// Classify maps any error to exactly one outcome. Validation messages are
// passed through; every other kind uses the caller-supplied text so no
// internal detail reaches the response.
func Classify(err error, msgs Messages) Outcome {
	appErr := GetAppError(err)
	if appErr == nil {
		return Outcome{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msgs.Internal}
	}

	switch appErr.Kind {
	case KindValidation:
		return Outcome{Kind: KindValidation, Status: http.StatusBadRequest, Message: appErr.Message}
	case KindReferential, KindConflict:
		// A missing product and a duplicate orderId both surface as 409.
		return Outcome{Kind: appErr.Kind, Status: http.StatusConflict, Message: msgs.Conflict}
	case KindNotFound:
		return Outcome{Kind: KindNotFound, Status: http.StatusNotFound, Message: msgs.NotFound}
	case KindInternal:
		return Outcome{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msgs.Internal}
	default:
		return Outcome{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msgs.Internal}
	}
}

// StatusFor returns the HTTP status associated with a kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindReferential, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
