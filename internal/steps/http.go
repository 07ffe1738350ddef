package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Request — параметры HTTP-вызова.
type Request struct {
	// Method — HTTP-метод. Default: GET.
	Method string

	// URL — адрес запроса (обязательно).
	URL string

	// Headers — заголовки запроса.
	Headers map[string]string

	// Body — тело запроса: string и []byte отправляются как есть,
	// остальное сериализуется в JSON.
	Body any

	// Timeout — таймаут запроса. Default: 30s.
	Timeout time.Duration
}

// Response — результат HTTP-вызова.
type Response struct {
	StatusCode int
	Headers    map[string]string

	// Body — JSON-тело, разобранное в any, или строка.
	Body any

	// Raw — тело ответа как есть.
	Raw []byte
}

// OK возвращает true для кодов 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err возвращает *HTTPError для кодов >= 400.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	return &HTTPError{
		StatusCode: r.StatusCode,
		Status:     http.StatusText(r.StatusCode),
		Body:       truncate(string(r.Raw), 200),
	}
}

// HTTPCall выполняет HTTP-запрос.
//
// Ответ с кодом >= 400 не считается ошибкой вызова: Response
// возвращается, решение принимает вызывающий (см. Response.Err, IsTransient).
func HTTPCall(ctx context.Context, client *http.Client, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if client == nil {
		client = http.DefaultClient
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := serializeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: serialize body: %v", ErrInvalidRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrInvalidRequest, err)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	return parseResponse(resp)
}

// IsTransient сообщает, имеет ли смысл повторить вызов.
//
// Повторяемы: сетевые ошибки и таймауты, 5xx, 429 и 408.
// Не повторяемы: некорректный запрос и остальные 4xx.
func IsTransient(resp *Response, err error) bool {
	if err != nil {
		return !errors.Is(err, ErrInvalidRequest)
	}
	if resp == nil {
		return false
	}

	switch {
	case resp.StatusCode >= 500:
		return true
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse читает тело (не больше maxResponseBody) и разбирает JSON.
func parseResponse(resp *http.Response) (*Response, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrHTTPRequest, err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	} else {
		body = string(raw)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		Raw:        raw,
	}, nil
}

// HTTPError — ответ downstream-сервиса с кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
