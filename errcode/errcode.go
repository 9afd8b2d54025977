package errcode

import (
	"errors"

	"pixelweather-go/x/logx"
)

// Code is a stable, log- and report-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable). Recoverable ones are listed first.
const (
	OK Code = "ok"

	// Connectivity and upstream protocol. The node retries these next cycle.
	WifiConnect Code = "wifi_connect"
	Offline     Code = "offline"
	Pwmp        Code = "pwmp"

	// Sensors and power.
	NoEnvSensor       Code = "no_env_sensor"
	Sensor            Code = "sensor"
	ADC               Code = "adc"
	BatteryOutOfRange Code = "battery_out_of_range"

	// Firmware slots.
	OtaInit                  Code = "ota_init"
	OtaSlot                  Code = "ota_slot"
	OtaWrite                 Code = "ota_write"
	OtaAbort                 Code = "ota_abort"
	OtaFinalize              Code = "ota_finalize"
	UpdateInProgress         Code = "update_in_progress"
	UpdateClosed             Code = "update_closed"
	IllegalFirmwareVersion   Code = "illegal_firmware_version"
	MissingPartitionMetadata Code = "missing_partition_metadata"
	Rebooting                Code = "rebooting"

	// Storage.
	NvsRead       Code = "nvs_read"
	NvsWrite      Code = "nvs_write"
	InvalidNvsKey Code = "invalid_nvs_key"

	// Invariants.
	ArgumentTooLong         Code = "argument_too_long"
	SsidTooLong             Code = "ssid_too_long"
	PskTooLong              Code = "psk_too_long"
	UnexpectedBufferFailure Code = "unexpected_buffer_failure"
	UnexpectedNull          Code = "unexpected_null"
	InvalidUTF8             Code = "invalid_utf8"
	InvalidParams           Code = "invalid_params"
	Unsupported             Code = "unsupported"
	Timeout                 Code = "timeout"
	Platform                Code = "platform"

	Error Code = "error" // generic fallback
)

// E wraps a Code with the operation that failed and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	switch {
	case e.Msg != "":
		return string(e.C) + ": " + e.Msg
	case e.Err != nil:
		return string(e.C) + ": " + e.Err.Error()
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New returns an *E carrying only a message.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap attaches c to err. A nil err stays nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// Recoverable reports whether err leaves the node in a state where simply
// trying again next cycle is safe. Everything else halts the node.
func Recoverable(err error) bool {
	switch Of(err) {
	case WifiConnect, Offline, Pwmp, BatteryOutOfRange:
		return true
	}
	return false
}

// Report logs err as a warning prefixed with desc. It is used on best-effort
// paths (teardown, notifications) where the error must not propagate.
func Report(err error, desc string) {
	if err == nil {
		return
	}
	logx.Module("errcode").Warn(desc + ": " + err.Error())
}
