package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/adrianliechti/glimpse/server/api"
)

type Client struct {
	Recognitions RecognitionService
	Documents    DocumentService
	Jobs         JobService
}

func New(url string, opts ...RequestOption) *Client {
	opts = append(opts, WithURL(url))

	return &Client{
		Recognitions: NewRecognitionService(opts...),
		Documents:    NewDocumentService(opts...),
		Jobs:         NewJobService(opts...),
	}
}

type RequestConfig struct {
	URL   string
	Token string

	Client *http.Client
}

type RequestOption func(*RequestConfig)

func WithURL(url string) RequestOption {
	return func(c *RequestConfig) {
		c.URL = url
	}
}

func WithToken(token string) RequestOption {
	return func(c *RequestConfig) {
		c.Token = token
	}
}

func WithHTTPClient(client *http.Client) RequestOption {
	return func(c *RequestConfig) {
		c.Client = client
	}
}

func newRequestConfig(opts ...RequestOption) *RequestConfig {
	c := &RequestConfig{
		Client: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func Ptr[T any](v T) *T {
	return &v
}

// Options are the conversion settings shared by all upload endpoints. Unset
// fields fall back to the server configuration.
type Options struct {
	Format string
	Mode   string

	Term   string
	Prompt string

	DPI           int
	ExtractImages *bool
	Caption       *bool
}

// Error is returned for every non successful API response.
type Error struct {
	StatusCode int

	Type    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Type, e.Message)
}

func newUpload(name string, r io.Reader, o Options) (*bytes.Buffer, string, error) {
	var data bytes.Buffer
	w := multipart.NewWriter(&data)

	fields := map[string]string{
		"format": o.Format,
		"mode":   o.Mode,
		"term":   o.Term,
		"prompt": o.Prompt,
	}

	if o.DPI > 0 {
		fields["dpi"] = strconv.Itoa(o.DPI)
	}

	if o.ExtractImages != nil {
		fields["extract_images"] = strconv.FormatBool(*o.ExtractImages)
	}

	if o.Caption != nil {
		fields["include_caption"] = strconv.FormatBool(*o.Caption)
	}

	for k, v := range fields {
		if v == "" {
			continue
		}

		w.WriteField(k, v)
	}

	f, err := w.CreateFormFile("file", name)

	if err != nil {
		return nil, "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		return nil, "", err
	}

	w.Close()

	return &data, w.FormDataContentType(), nil
}

func (c *RequestConfig) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()

	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	result := &Error{
		StatusCode: resp.StatusCode,
	}

	var body api.ErrorResponse

	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		result.Type = body.Error.Type
		result.Message = body.Error.Message
	}

	return result
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == code
}
