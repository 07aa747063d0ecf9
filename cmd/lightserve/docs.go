package main

// General API documentation for swaggo. Regenerate internal/httpapi/docs with
// `swag init -g cmd/lightserve/docs.go -d ./,./internal/httpapi -o internal/httpapi/docs`.
//
// @title           lightserve API
// @version         1.0
// @description     OpenAI-compatible inference gateway in front of a single model backend.
//
// @contact.name   lightserve maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
