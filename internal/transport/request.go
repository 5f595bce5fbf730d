package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// ErrorBody is the error document the record store returns with non-200 responses.
type ErrorBody struct {
	Code    string `json:"code"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DecodeResponse decodes a JSON response into the target structure. Only
// HTTP 200 is success; any other status becomes an *errors.APIError carrying
// the store's message, or the raw body when it is not an error document.
func DecodeResponse(resp *http.Response, target any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			// Log warning but don't override the main error
			logging.Warn().Err(err).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &errors.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
		if resp.Request != nil && resp.Request.URL != nil {
			apiErr.Endpoint = resp.Request.URL.Path
		}
		var doc ErrorBody
		if json.Unmarshal(body, &doc) == nil && doc.Message != "" {
			apiErr.Message = doc.Code + ": " + doc.Message
		}
		return apiErr
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", "response", err)
	}

	return nil
}
