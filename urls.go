package filesapi

import (
	"fmt"

	"github.com/oapi-codegen/runtime"
)

// uploadURL формирует URL загрузки: baseURL + "?path=" + path.
// Без WithURLEncoding path подставляется как есть.
func (c *Config) uploadURL(path string) (string, error) {
	if !c.encodeURLParams {
		return c.baseURL + "?path=" + path, nil
	}
	query, err := runtime.StyleParamWithLocation("form", true, "path", runtime.ParamLocationQuery, path)
	if err != nil {
		return "", err
	}
	return c.baseURL + "?" + query, nil
}

// PreviewURL формирует URL скачивания файла по токену доступа:
// baseURL + "/" + fileID + "/download?access_token=" + accessToken.
// Без WithURLEncoding значения подставляются как есть.
func (c *Config) PreviewURL(fileID, accessToken string) string {
	verbatim := c.baseURL + "/" + fileID + "/download?access_token=" + accessToken
	if !c.encodeURLParams {
		return verbatim
	}
	u, err := c.encodedPreviewURL(fileID, accessToken)
	if err != nil {
		return verbatim
	}
	return u
}

// encodedPreviewURL кодирует fileID как сегмент пути, accessToken как query-параметр.
func (c *Config) encodedPreviewURL(fileID, accessToken string) (string, error) {
	segment, err := runtime.StyleParamWithLocation("simple", false, "fileId", runtime.ParamLocationPath, fileID)
	if err != nil {
		return "", fmt.Errorf("кодирование fileId: %w", err)
	}
	query, err := runtime.StyleParamWithLocation("form", true, "access_token", runtime.ParamLocationQuery, accessToken)
	if err != nil {
		return "", fmt.Errorf("кодирование access_token: %w", err)
	}
	return c.baseURL + "/" + segment + "/download?" + query, nil
}
