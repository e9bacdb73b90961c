package models

// ErrorResponse представляет ошибку API
type ErrorResponse struct {
	Message string `json:"message"`
}
