package steps

import "errors"

// Ошибки шагов.
var (
	// ErrInvalidRequest — некорректные параметры запроса.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrHTTPRequest — запрос не выполнен (сеть, таймаут, отмена).
	ErrHTTPRequest = errors.New("http request failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка выполнения шаблона.
	ErrTemplateRender = errors.New("template render error")
)
