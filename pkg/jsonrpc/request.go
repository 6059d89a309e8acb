package jsonrpc

import "encoding/json"

// Version is the only JSON-RPC protocol version this package speaks.
const Version = "2.0"

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // accepts string | number | null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

/*
NewRequest builds a request envelope, marshalling params in place.  A nil
params leaves the field empty, which the protocol treats as "no
parameters".
*/
func NewRequest(id any, method string, params any) (*RPCRequest, error) {
	req := &RPCRequest{
		JSONRPC: Version,
		Method:  method,
	}

	if id != nil {
		buf, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		req.ID = buf
	}

	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = buf
	}

	return req, nil
}

// IsNotification reports whether the request carries no id and therefore
// expects no response.
func (req *RPCRequest) IsNotification() bool {
	return len(req.ID) == 0 || string(req.ID) == "null"
}
