package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxInputBytes = 1 << 20

// Error codes used in error envelopes, mirroring tRPC's names.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
	CodeBadGateway   = "BAD_GATEWAY"
)

type resultEnvelope struct {
	Result struct {
		Data any `json:"data"`
	} `json:"result"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Data    struct {
			HTTPStatus int    `json:"httpStatus"`
			Path       string `json:"path,omitempty"`
		} `json:"data"`
	} `json:"error"`
}

// WriteResult writes a successful procedure response.
func WriteResult(w http.ResponseWriter, data any) error {
	var env resultEnvelope
	env.Result.Data = data
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(env)
}

// WriteError writes an error envelope with the given HTTP status.
func WriteError(w http.ResponseWriter, status int, code, procedure, message string) error {
	var env errorEnvelope
	env.Error.Message = message
	env.Error.Code = code
	env.Error.Data.HTTPStatus = status
	env.Error.Data.Path = procedure
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(env)
}

// DecodeInput reads a mutation's JSON input.
func DecodeInput(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxInputBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
