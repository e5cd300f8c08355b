// errors.go — общие ошибки сервисного слоя.
package service

import "errors"

// ErrNotFound — ни один экземпляр не соответствует запрошенным
// идентификаторам. Хэндлеры транслируют её в HTTP 404.
var ErrNotFound = errors.New("экземпляры не найдены")
