package providers

import "testing"

func TestClassifyAPIErrorDetectsModelNotSupported(t *testing.T) {
	cases := []struct {
		status  int
		message string
	}{
		{404, "The model `gpt-nonexistent` does not exist"},
		{400, "model_not_found: no such model"},
		{400, "This model does not support tool use"},
		{404, "No endpoints found that support tool use"},
	}
	for _, c := range cases {
		kind := ClassifyAPIError(c.status, c.message)
		if kind != ModelNotSupported {
			t.Errorf("ClassifyAPIError(%d, %q) = %s, want ModelNotSupported", c.status, c.message, kind)
		}
		if kind.IsRetryable() {
			t.Errorf("ModelNotSupported must not be retryable")
		}
	}
}

func TestClassifyAPIErrorPlainBadRequestStaysApiRequestFailed(t *testing.T) {
	if kind := ClassifyAPIError(400, "invalid request: messages must not be empty"); kind != ApiRequestFailed {
		t.Errorf("got %s, want ApiRequestFailed", kind)
	}
}

func TestClassifyAPIErrorStatusClassificationWinsOverBody(t *testing.T) {
	// A 429 stays a rate limit even if the body happens to mention a model.
	if kind := ClassifyAPIError(429, "model gpt-4o does not exist"); kind != RateLimitExceeded {
		t.Errorf("got %s, want RateLimitExceeded", kind)
	}
	if kind := ClassifyAPIError(503, "temporarily unavailable"); kind != ServiceUnavailable {
		t.Errorf("got %s, want ServiceUnavailable", kind)
	}
}
