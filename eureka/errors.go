package eureka

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
)

// Module Code: 60 (eureka)
const moduleCodeEureka = 60

// Error code definitions. Match with errors.Is against these sentinels.
var (
	// ErrNetwork transport-level failure, wraps the cause
	ErrNetwork = errcode.Register(errcode.New(
		moduleCodeEureka, 1, "eureka", "eureka.network_failure", "registry network failure", http.StatusBadGateway,
	))

	// ErrUnexpectedStatus the registry answered with a non-success status (data "status")
	ErrUnexpectedStatus = errcode.Register(errcode.New(
		moduleCodeEureka, 2, "eureka", "eureka.unexpected_status", "unexpected registry status", http.StatusBadGateway,
	))

	// ErrUnexpectedState the registry does not recognize the instance (heartbeat 404)
	ErrUnexpectedState = errcode.Register(errcode.New(
		moduleCodeEureka, 3, "eureka", "eureka.unexpected_state", "instance unknown to registry", http.StatusNotFound,
	))

	// ErrParse the payload did not match the wire schema
	ErrParse = errcode.Register(errcode.New(
		moduleCodeEureka, 4, "eureka", "eureka.parse_error", "registry payload parse error", http.StatusBadGateway,
	))

	// ErrUnknownApp no UP endpoint for the app
	ErrUnknownApp = errcode.Register(errcode.New(
		moduleCodeEureka, 5, "eureka", "eureka.unknown_app", "unknown app", http.StatusNotFound,
	))

	// ErrInvalidConfig configuration or instance validation failed
	ErrInvalidConfig = errcode.Register(errcode.New(
		moduleCodeEureka, 6, "eureka", "eureka.invalid_config", "invalid eureka configuration", http.StatusBadRequest,
	))

	// ErrAlreadyStarted Start called twice
	ErrAlreadyStarted = errcode.Register(errcode.New(
		moduleCodeEureka, 7, "eureka", "eureka.already_started", "already started", http.StatusConflict,
	))

	// ErrNotRegistering the client was built with register_with_eureka=false
	ErrNotRegistering = errcode.Register(errcode.New(
		moduleCodeEureka, 8, "eureka", "eureka.not_registering", "instance registration is disabled", http.StatusConflict,
	))

	// ErrNoBackup the backup store holds no registry copy
	ErrNoBackup = errcode.Register(errcode.New(
		moduleCodeEureka, 9, "eureka", "eureka.no_backup", "no registry backup", http.StatusNotFound,
	))
)

func unexpectedStatus(op string, code int) error {
	return ErrUnexpectedStatus.
		WithMsgf("%s: unexpected registry status %d", op, code).
		WithData("op", op).
		WithData("status", code)
}

// StatusCode returns the HTTP status carried by an ErrUnexpectedStatus, or 0.
func StatusCode(err error) int {
	le, ok := errcode.As(err)
	if !ok || le.Code() != ErrUnexpectedStatus.Code() {
		return 0
	}
	code, _ := le.Data()["status"].(int)
	return code
}
