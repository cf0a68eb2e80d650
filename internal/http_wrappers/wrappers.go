package http_wrappers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mckinsey/ark-evaluator/internal/messages"
	"github.com/mckinsey/ark-evaluator/internal/serviceerrors"
	"github.com/mckinsey/ark-evaluator/pkg/api"
)

// RequestWrapper abstracts the inbound request so handlers can be exercised
// with hand-rolled fakes instead of net/http plumbing.
type RequestWrapper interface {
	BodyAsBytes() ([]byte, error)
	Query(name string) []string
	PathValue(name string) string
	URI() string
	Method() string
	Header(name string) string
}

// ResponseWrapper abstracts the outbound response. Error translates a
// ServiceError to its message code's status; any other error becomes a 500.
type ResponseWrapper interface {
	WriteJSON(v any, statusCode int)
	Error(err error, requestID string)
}

type httpRequest struct {
	request *http.Request
}

func NewRequestWrapper(r *http.Request) RequestWrapper {
	return &httpRequest{request: r}
}

func (r *httpRequest) BodyAsBytes() ([]byte, error) {
	defer func() { _ = r.request.Body.Close() }()
	body, err := io.ReadAll(r.request.Body)
	if err != nil {
		return nil, serviceerrors.NewServiceError(messages.InvalidJSONRequest, "Error", err.Error())
	}
	return body, nil
}

func (r *httpRequest) Query(name string) []string {
	return r.request.URL.Query()[name]
}

func (r *httpRequest) PathValue(name string) string {
	return r.request.PathValue(name)
}

func (r *httpRequest) URI() string {
	return r.request.RequestURI
}

func (r *httpRequest) Method() string {
	return r.request.Method
}

func (r *httpRequest) Header(name string) string {
	return r.request.Header.Get(name)
}

type httpResponse struct {
	writer http.ResponseWriter
}

func NewResponseWrapper(w http.ResponseWriter) ResponseWrapper {
	return &httpResponse{writer: w}
}

func (w *httpResponse) WriteJSON(v any, statusCode int) {
	w.writer.Header().Set("Content-Type", "application/json")
	w.writer.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w.writer).Encode(v)
}

func (w *httpResponse) Error(err error, requestID string) {
	serviceError, ok := serviceerrors.AsServiceError(err)
	if !ok {
		serviceError = serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
	}
	body := api.Error{
		Message:     serviceError.Error(),
		MessageCode: serviceError.Code.GetCode(),
		RequestID:   requestID,
	}
	w.WriteJSON(body, serviceError.StatusCode())
}
