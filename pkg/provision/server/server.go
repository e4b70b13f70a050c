// Package server exposes the provisioning coordinator over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/provision"
)

const (
	v1PathPrefix          = "/v1"
	v1ProvisionPath       = v1PathPrefix + "/provision"
	v1ProvisionStatusPath = v1PathPrefix + "/provisionStatus"

	contentTypeHeaderName      = "content-type"
	jsonContentTypeHeaderValue = "application/json"
)

type Server struct {
	log         *logrus.Entry
	coordinator *provision.Coordinator
}

func NewProvisionServer(coordinator *provision.Coordinator) *Server {
	return &Server{
		log:         logrus.StandardLogger().WithField("type", "provision/server"),
		coordinator: coordinator,
	}
}

func (s *Server) provisionHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithField("path", path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			req, err := newProvisionRequestFromHttpContext(r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("idempotency_key", req.IdempotencyKey)

			res, err := s.coordinator.Provision(ctx, req)
			if err != nil {
				log.WithError(err).Warn("failure provisioning account")
				statusCode, err := HandleProvisionErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			return http.StatusOK, newResponseBodyFromResult(res)
		}()

		w.Header().Set(contentTypeHeaderName, jsonContentTypeHeaderValue)
		w.WriteHeader(statusCode)
		w.Write([]byte(body.ToString()))
	}
}

func (s *Server) getStatusHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithField("path", path)

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			keyQueryParam := r.URL.Query()["key"]
			if len(keyQueryParam) < 1 {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("key query parameter missing"))
			}
			log = log.WithField("idempotency_key", keyQueryParam[0])

			res, err := s.coordinator.GetStatus(ctx, keyQueryParam[0])
			if err != nil {
				log.WithError(err).Warn("failure getting provisioning status")
				statusCode, err := HandleProvisionErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			return http.StatusOK, newResponseBodyFromResult(res)
		}()

		w.Header().Set(contentTypeHeaderName, jsonContentTypeHeaderValue)
		w.WriteHeader(statusCode)
		w.Write([]byte(body.ToString()))
	}
}

func (s *Server) GetHandlers() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		v1ProvisionPath:       s.provisionHandler(v1ProvisionPath),
		v1ProvisionStatusPath: s.getStatusHandler(v1ProvisionStatusPath),
	}
}
