package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/cloudfusionadmin/filevaults/pkg/provision"
)

type provisionRequestBody struct {
	IdempotencyKey   string `json:"idempotencyKey"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Plan             string `json:"plan"`
	CredentialRef    string `json:"credentialRef"`
	PaymentMethodRef string `json:"paymentMethodRef"`
}

func newProvisionRequestFromHttpContext(r *http.Request) (*provision.Request, error) {
	var body provisionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.New("invalid json request body")
	}

	return &provision.Request{
		IdempotencyKey:   body.IdempotencyKey,
		Username:         body.Username,
		Email:            body.Email,
		Plan:             body.Plan,
		CredentialRef:    body.CredentialRef,
		PaymentMethodRef: body.PaymentMethodRef,
	}, nil
}

func newResponseBodyFromResult(res *provision.Result) GenericApiResponseBody {
	body := NewGenericApiSuccessResponseBody()
	body["accountId"] = res.AccountId
	body["status"] = res.Status.String()
	if len(res.ClientSecret) > 0 {
		body["clientSecret"] = res.ClientSecret
	}
	return body
}
