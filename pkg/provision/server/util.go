package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/cloudfusionadmin/filevaults/pkg/provision"
)

const (
	successJsonKey = "success"
	errorJsonKey   = "error"
)

type GenericApiResponseBody map[string]any

func NewGenericApiSuccessResponseBody() GenericApiResponseBody {
	return map[string]any{
		successJsonKey: true,
	}
}

func NewGenericApiFailureResponseBody(err error) GenericApiResponseBody {
	return map[string]any{
		successJsonKey: false,
		errorJsonKey:   err.Error(),
	}
}

func (b *GenericApiResponseBody) ToString() string {
	marshalled, _ := json.Marshal(b)
	return string(marshalled)
}

func HandleProvisionErrorInWebContext(err error) (int, error) {
	switch {
	case err == nil:
		return http.StatusOK, nil
	case errors.Is(err, provision.ErrInvalidRequest):
		return http.StatusBadRequest, err
	case errors.Is(err, provision.ErrIdempotencyConflict),
		errors.Is(err, provision.ErrAttemptInProgress),
		errors.Is(err, provision.ErrAccountExists):
		return http.StatusConflict, err
	case errors.Is(err, provision.ErrNotFound):
		return http.StatusNotFound, err
	default:
		return http.StatusInternalServerError, errors.New("internal server error")
	}
}
