package jsonrpc

import (
	"encoding/json"

	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

type RPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

/*
NewResponse builds a success envelope around an already-materialized
result.  Marshal failures degrade to an internal error envelope so the
caller always has something well-formed to write.
*/
func NewResponse(id json.RawMessage, result any) RPCResponse {
	buf, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, errors.ErrInternal.WithMessagef("Internal error: %s", err.Error()))
	}

	return RPCResponse{
		JSONRPC: Version,
		ID:      id,
		Result:  buf,
	}
}

func NewErrorResponse(id json.RawMessage, e *errors.RpcError) RPCResponse {
	// Ensure mandatory Code/Message.
	if e == nil {
		e = errors.ErrInternal
	}

	return RPCResponse{
		JSONRPC: Version,
		ID:      id,
		Error:   e,
	}
}

// DecodeResult unmarshals the result field into out, surfacing the
// envelope's error first when one is present.
func (resp *RPCResponse) DecodeResult(out any) error {
	if resp.Error != nil {
		return resp.Error
	}

	if out == nil || len(resp.Result) == 0 {
		return nil
	}

	return json.Unmarshal(resp.Result, out)
}
