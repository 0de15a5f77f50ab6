package errors

// ServiceError should be used to return error messages in JSON format.
type ServiceError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}
