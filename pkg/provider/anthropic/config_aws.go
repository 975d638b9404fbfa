package anthropic

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errStreamingUnsupported = errors.New("bedrock: streaming transcriptions are not supported")

// bedrockMiddleware lets the Messages API client talk to a Bedrock runtime
// endpoint authenticated with a bearer token instead of SigV4.
func bedrockMiddleware(token string) option.Middleware {
	return func(r *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		if r.Body != nil && r.Method == http.MethodPost && bedrock.DefaultEndpoints[r.URL.Path] {
			data, err := io.ReadAll(r.Body)

			if err != nil {
				return nil, err
			}

			r.Body.Close()

			model, body, err := bedrockBody(data, r.Header.Values("anthropic-beta"))

			if err != nil {
				return nil, err
			}

			r.Header.Del("anthropic-beta")

			r.URL.Path = "/model/" + model + "/invoke"
			r.URL.RawPath = "/model/" + url.PathEscape(model) + "/invoke"

			setBody(r, body)
		}

		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}

		return next(r)
	}
}

// bedrockBody moves the model id out of the request body and adds the
// version and beta fields Bedrock expects in its place.
func bedrockBody(data []byte, betas []string) (string, []byte, error) {
	if gjson.GetBytes(data, "stream").Bool() {
		return "", nil, errStreamingUnsupported
	}

	model := gjson.GetBytes(data, "model").String()

	body, err := sjson.DeleteBytes(data, "model")

	if err != nil {
		return "", nil, err
	}

	body, _ = sjson.DeleteBytes(body, "stream")

	if !gjson.GetBytes(body, "anthropic_version").Exists() {
		if body, err = sjson.SetBytes(body, "anthropic_version", bedrock.DefaultVersion); err != nil {
			return "", nil, err
		}
	}

	if len(betas) > 0 {
		if body, err = sjson.SetBytes(body, "anthropic_beta", betas); err != nil {
			return "", nil, err
		}
	}

	return model, body, nil
}

func setBody(r *http.Request, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}
