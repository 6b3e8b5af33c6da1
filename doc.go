// Пакет filesapi — клиент удалённого сервиса Files API.
//
// Операции:
//   - загрузка одного или нескольких файлов с метаданными и целевым путём
//     (POST <baseURL>?path=<path>, multipart/form-data, поле "files");
//   - запрос токена доступа к ранее загруженным файлам
//     (POST <baseURL>/access-tokens, JSON);
//   - формирование URL скачивания по токену (<baseURL>/<fileId>/download?access_token=<token>).
//
// Каждый запрос несёт заголовок API-KEY. Ответы сервиса приходят в обёртке
// {"data": ...} и преобразуются в FileUploadResponse и AccessTokenResponse.
// Ошибки — *ConfigurationError, *UploadError и *AccessTokenError с общей частью
// FilesAPIError (StatusCode, ResponseBody).
//
// Клиент ничего не кэширует и не хранит; повторы выключены, пока не задан WithRetry.
package filesapi
