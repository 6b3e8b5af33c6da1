// contract.go — проверка входящих запросов по OpenAPI-контракту Files API.
package filesapitest

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var contractSpec []byte

// contract — загруженный OpenAPI-документ.
type contract struct {
	doc *openapi3.T
}

// loadContract загружает и валидирует встроенный OpenAPI-документ.
func loadContract() (*contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(contractSpec)
	if err != nil {
		return nil, fmt.Errorf("загрузка OpenAPI-контракта: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI-контракта: %w", err)
	}
	return &contract{doc: doc}, nil
}

// validate проверяет запрос к операции path/method.
// excludeBody — не проверять тело (multipart с произвольными полями метаданных).
func (c *contract) validate(r *http.Request, path string, pathParams map[string]string, excludeBody bool) error {
	pathItem := c.doc.Paths.Find(path)
	if pathItem == nil {
		return fmt.Errorf("путь %s отсутствует в контракте", path)
	}
	op := pathItem.GetOperation(r.Method)
	if op == nil {
		return fmt.Errorf("метод %s %s отсутствует в контракте", r.Method, path)
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route: &routers.Route{
			Spec:      c.doc,
			Path:      path,
			PathItem:  pathItem,
			Method:    r.Method,
			Operation: op,
		},
		Options: &openapi3filter.Options{
			ExcludeRequestBody: excludeBody,
		},
	}
	return openapi3filter.ValidateRequest(r.Context(), input)
}
