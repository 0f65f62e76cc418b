package protocol

import "fmt"

// ResponseFactory builds JSON-RPC responses for the MCP server side.
type ResponseFactory struct{}

func NewResponseFactory() *ResponseFactory {
	return &ResponseFactory{}
}

// CreateSuccess creates a success response carrying result
func (f *ResponseFactory) CreateSuccess(id interface{}, result interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// CreateError creates an error response with an arbitrary code
func (f *ResponseFactory) CreateError(id interface{}, code int, message string, data interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   NewRPCError(code, message, data),
	}
}

// CreateInvalidRequest creates an invalid request error response (-32600)
func (f *ResponseFactory) CreateInvalidRequest(id interface{}, message string) JSONRPCResponse {
	return f.CreateError(id, InvalidRequest, message, nil)
}

// CreateInvalidParams creates an invalid params error response (-32602)
func (f *ResponseFactory) CreateInvalidParams(id interface{}, message string) JSONRPCResponse {
	return f.CreateError(id, InvalidParams, message, nil)
}

// CreateMethodNotFound creates a method not found error response (-32601)
func (f *ResponseFactory) CreateMethodNotFound(id interface{}, message string) JSONRPCResponse {
	return f.CreateError(id, MethodNotFound, message, nil)
}

// CreateInternalError creates an internal error response (-32603)
func (f *ResponseFactory) CreateInternalError(id interface{}, err error) JSONRPCResponse {
	return f.CreateError(id, InternalError, fmt.Sprintf("%v", err), nil)
}
