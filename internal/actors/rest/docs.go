package rest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
	openAPIJSONOnce sync.Once
	openAPIJSON     []byte
	openAPIJSONErr  error
)

func serveOpenAPIYAML(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", openAPIYAML)
}

func serveOpenAPIJSON(c echo.Context) error {
	openAPIJSONOnce.Do(func() {
		openAPIJSON, openAPIJSONErr = yamlToJSON(openAPIYAML)
	})
	if openAPIJSONErr != nil {
		return openAPIJSONErr
	}
	return c.JSONBlob(http.StatusOK, openAPIJSON)
}

func yamlToJSON(in []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, fmt.Errorf("error parsing openapi document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error encoding openapi document: %w", err)
	}
	return out, nil
}
