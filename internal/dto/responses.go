package dto

// ErrorResponse — стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse — стандартный успешный ответ с данными.
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ActionResponse — ответ совместимого endpoint'а POST /tasks/actions:
// success и либо data, либо error.
type ActionResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OkActionResponse собирает успешный ответ действия.
func OkActionResponse(data interface{}) ActionResponse {
	return ActionResponse{Success: true, Data: data}
}

// FailActionResponse собирает неуспешный ответ действия.
func FailActionResponse(message string) ActionResponse {
	return ActionResponse{Success: false, Error: message}
}
