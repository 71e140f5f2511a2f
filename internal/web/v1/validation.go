package v1

import "strings"

type startSessionRequest struct {
	Flow string `json:"flow"`
}

type updateFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value any    `json:"value"`
}

type addTagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

// credentialsRequest fields are optional here; the connect step reports
// blank ones as missing fields.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type advanceRequest struct {
	Credentials *credentialsRequest `json:"credentials"`
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required,len=4,numeric"`
}

// sanitizeValidationError returns a user-friendly message for validation/binding errors.
// Raw gin/validator errors never reach clients.
func sanitizeValidationError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "validation") ||
		strings.Contains(msg, "cannot unmarshal") ||
		strings.Contains(msg, "bind") ||
		strings.Contains(msg, "Key:") ||
		strings.Contains(msg, "EOF") {
		return "Invalid request"
	}
	if len(msg) < 100 && !strings.Contains(msg, "Error:") {
		return msg
	}
	return "Invalid request"
}
