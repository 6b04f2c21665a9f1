package authcore

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	// ErrInvalidCredential indicates an unknown email or a password mismatch.
	ErrInvalidCredential = errors.New("auth.invalid_credential")
	// ErrEmailTaken indicates an identity with the requested email already exists.
	ErrEmailTaken = errors.New("auth.email_taken")
	// ErrCodeMismatch indicates the supplied activation code does not match the signed one.
	ErrCodeMismatch = errors.New("auth.code_mismatch")
	// ErrInvalidSignature indicates a token failed signature or structural checks.
	ErrInvalidSignature = errors.New("auth.invalid_signature")
	// ErrTokenExpired indicates a token passed signature checks but is past its expiry.
	ErrTokenExpired = errors.New("auth.token_expired")
	// ErrSessionExpired indicates no session record backs an otherwise valid token.
	ErrSessionExpired = errors.New("auth.session_expired")
	// ErrMissingToken indicates the request carried no credential at all.
	ErrMissingToken = errors.New("auth.missing_token")
	// ErrForbidden indicates the authenticated identity lacks a required role.
	ErrForbidden = errors.New("auth.forbidden")
	// ErrUserNotFound indicates the credential store holds no such identity.
	ErrUserNotFound = errors.New("auth.user_not_found")
)

// HTTPStatus maps a domain error to its response status. Unrecognized errors
// are infrastructure faults and map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrCodeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError translates a failure into the JSON error body and aborts the
// request. Infrastructure faults never leak their message to the client.
func AbortWithError(contextGin *gin.Context, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		_ = contextGin.Error(err)
		contextGin.AbortWithStatusJSON(status, gin.H{"error": "internal_error"})
		return
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": domainCode(err)})
}

func domainCode(err error) string {
	for _, sentinel := range []error{
		ErrInvalidCredential,
		ErrEmailTaken,
		ErrCodeMismatch,
		ErrInvalidSignature,
		ErrTokenExpired,
		ErrSessionExpired,
		ErrMissingToken,
		ErrForbidden,
		ErrUserNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
