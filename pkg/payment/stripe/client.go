// Package stripe implements payment.Gateway against the Stripe
// PaymentIntents API.
package stripe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/payment"
)

const (
	defaultBaseUrl = "https://api.stripe.com"
	requestTimeout = 30 * time.Second

	paymentIntentsPath = "/v1/payment_intents"
)

type client struct {
	log        *logrus.Entry
	apiKey     string
	baseUrl    string
	httpClient *http.Client
}

// New returns a payment.Gateway backed by the Stripe API.
func New(apiKey string, opts ...Option) payment.Gateway {
	c := &client{
		log:     logrus.StandardLogger().WithField("type", "payment/stripe"),
		apiKey:  apiKey,
		baseUrl: defaultBaseUrl,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Option configures the Stripe client.
type Option func(*client)

// WithBaseUrl overrides the API base URL. Used for testing against a stub.
func WithBaseUrl(baseUrl string) Option {
	return func(c *client) {
		c.baseUrl = strings.TrimSuffix(baseUrl, "/")
	}
}

type paymentIntentResource struct {
	Id           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       uint64 `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	Created      int64  `json:"created"`
}

type errorResource struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code"`
	} `json:"error"`
}

func (c *client) CreateIntent(ctx context.Context, amount uint64, currency string) (*payment.Intent, error) {
	params := url.Values{}
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("currency", currency)
	params.Set("automatic_payment_methods[enabled]", "true")

	var res paymentIntentResource
	if err := c.do(ctx, http.MethodPost, paymentIntentsPath, params, &res); err != nil {
		return nil, err
	}

	return fromResource(&res), nil
}

func (c *client) AttachMethod(ctx context.Context, intentId, methodRef string) error {
	params := url.Values{}
	params.Set("payment_method", methodRef)

	var res paymentIntentResource
	return c.do(ctx, http.MethodPost, paymentIntentsPath+"/"+intentId, params, &res)
}

func (c *client) ConfirmIntent(ctx context.Context, intentId string) (payment.IntentStatus, error) {
	var res paymentIntentResource
	err := c.do(ctx, http.MethodPost, paymentIntentsPath+"/"+intentId+"/confirm", url.Values{}, &res)
	if err != nil {
		return payment.StatusUnknown, err
	}

	return statusFromString(res.Status), nil
}

func (c *client) CancelIntent(ctx context.Context, intentId string) error {
	var res paymentIntentResource
	err := c.do(ctx, http.MethodPost, paymentIntentsPath+"/"+intentId+"/cancel", url.Values{}, &res)
	if errors.Is(err, payment.ErrInvalidIntentState) {
		current, getErr := c.GetIntent(ctx, intentId)
		if getErr == nil {
			switch current.Status {
			case payment.StatusCanceled:
				// Already canceled
				return nil
			case payment.StatusConfirmed:
				return errors.Wrap(payment.ErrNotCancelable, "intent already captured")
			}
		}
	}
	return err
}

func (c *client) GetIntent(ctx context.Context, intentId string) (*payment.Intent, error) {
	var res paymentIntentResource
	if err := c.do(ctx, http.MethodGet, paymentIntentsPath+"/"+intentId, nil, &res); err != nil {
		return nil, err
	}

	return fromResource(&res), nil
}

func (c *client) do(ctx context.Context, method, path string, params url.Values, res *paymentIntentResource) error {
	var body io.Reader
	if params != nil && method != http.MethodGet {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(payment.ErrUnavailable, err.Error())
	}
	defer httpRes.Body.Close()

	resBody, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return errors.Wrap(payment.ErrUnavailable, err.Error())
	}

	if httpRes.StatusCode >= http.StatusInternalServerError || httpRes.StatusCode == http.StatusTooManyRequests {
		return errors.Wrapf(payment.ErrUnavailable, "stripe returned http %d", httpRes.StatusCode)
	}

	if httpRes.StatusCode >= http.StatusBadRequest {
		var apiError errorResource
		if err := json.Unmarshal(resBody, &apiError); err != nil {
			return errors.Errorf("stripe returned http %d", httpRes.StatusCode)
		}

		return mapApiError(httpRes.StatusCode, &apiError)
	}

	return json.Unmarshal(resBody, res)
}

func mapApiError(statusCode int, apiError *errorResource) error {
	switch apiError.Error.Type {
	case "card_error":
		return errors.Wrap(payment.ErrDeclined, apiError.Error.Message)
	case "invalid_request_error":
		switch {
		case statusCode == http.StatusNotFound:
			return payment.ErrIntentNotFound
		case apiError.Error.Code == "payment_intent_unexpected_state":
			return errors.Wrap(payment.ErrInvalidIntentState, apiError.Error.Message)
		}
	}

	return errors.Errorf("stripe api error: %s: %s", apiError.Error.Type, apiError.Error.Message)
}

func fromResource(res *paymentIntentResource) *payment.Intent {
	return &payment.Intent{
		Id:           res.Id,
		ClientSecret: res.ClientSecret,
		Amount:       res.Amount,
		Currency:     res.Currency,
		Status:       statusFromString(res.Status),
		CreatedAt:    time.Unix(res.Created, 0),
	}
}

func statusFromString(value string) payment.IntentStatus {
	switch value {
	case "requires_payment_method":
		return payment.StatusCreated
	case "requires_confirmation", "requires_action", "processing":
		return payment.StatusMethodAttached
	case "succeeded", "requires_capture":
		return payment.StatusConfirmed
	case "canceled":
		return payment.StatusCanceled
	}

	return payment.StatusUnknown
}
