package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lsmcp/src/internal/common"
)

// JSON-RPC protocol constants
const (
	JSONRPCVersion = "2.0"
)

// JSON-RPC error codes
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// Read buffer size for server output. Large enough that workspace/symbol
// style responses never straddle an undersized buffer.
const responseBufferSize = 1024 * 1024

// ErrBadFraming reports a header block without a usable Content-Length.
// It is fatal for the stream it occurred on.
var ErrBadFraming = errors.New("invalid LSP framing")

// JSONRPCMessage represents an outbound JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// inboundMessage is the decode target for server output. ID stays raw so a
// numeric id and a string id with the same digits never collide.
type inboundMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// MessageHandler receives classified inbound messages from the read loop.
type MessageHandler interface {
	HandleRequest(method string, id json.RawMessage, params json.RawMessage) error
	HandleResponse(id json.RawMessage, result json.RawMessage, rpcErr *RPCError) error
	HandleNotification(method string, params json.RawMessage) error
}

// LSPFramer encodes and decodes JSON-RPC messages with LSP Content-Length
// framing over a byte stream.
type LSPFramer struct {
	language string // Language identifier for logging context
}

// NewLSPFramer creates a framer for one server stream
func NewLSPFramer(language string) *LSPFramer {
	return &LSPFramer{language: language}
}

// WriteMessage sends a JSON-RPC message with proper Content-Length header
// formatting. The declared length is the UTF-8 byte length of the payload.
func (p *LSPFramer) WriteMessage(writer io.Writer, msg JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(data), data)

	_, err = writer.Write([]byte(content))
	return err
}

// ReadLoop consumes the server's output stream until EOF, the stop channel
// closes, or a fatal framing error occurs. Chunk boundaries are arbitrary:
// a single read may split a message mid-header or mid-body, which the
// buffered reader plus io.ReadFull absorb.
func (p *LSPFramer) ReadLoop(reader io.Reader, handler MessageHandler, stopCh <-chan struct{}) error {
	bufReader := bufio.NewReaderSize(reader, responseBufferSize)

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		contentLength := -1
		sawHeader := false

		for {
			line, err := bufReader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if sawHeader {
						return fmt.Errorf("%w: stream ended inside header block", ErrBadFraming)
					}
					// EOF between messages is normal stream end
					return nil
				}
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				if !sawHeader {
					// Stray separator between messages, keep scanning
					continue
				}
				break
			}
			sawHeader = true

			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(key), "content-length") {
				length, err := strconv.Atoi(strings.TrimSpace(value))
				if err != nil || length < 0 {
					return fmt.Errorf("%w: unparseable Content-Length %q", ErrBadFraming, strings.TrimSpace(value))
				}
				contentLength = length
			}
		}

		if contentLength < 0 {
			return fmt.Errorf("%w: header block without Content-Length", ErrBadFraming)
		}

		body := make([]byte, contentLength)
		if _, err := io.ReadFull(bufReader, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fmt.Errorf("%w: stream ended inside %d-byte body", ErrBadFraming, contentLength)
			}
			return err
		}

		if err := p.HandleMessage(body, handler); err != nil {
			common.LSPLogger.Error("Error handling message from %s: %v", p.language, err)
			// A bad message body is not fatal for the stream
		}
	}
}

// HandleMessage classifies a single JSON-RPC message and routes it: method
// plus id is a server request, method alone a notification, id alone a
// response to one of our calls.
func (p *LSPFramer) HandleMessage(data []byte, handler MessageHandler) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message from %s: %w", p.language, err)
	}

	hasID := len(msg.ID) > 0 && !bytes.Equal(msg.ID, []byte("null"))

	switch {
	case msg.Method != "" && hasID:
		common.LSPLogger.Debug("Received server request: method=%s, id=%s from %s", msg.Method, msg.ID, p.language)
		return handler.HandleRequest(msg.Method, msg.ID, msg.Params)
	case msg.Method != "":
		common.LSPLogger.Debug("Received server notification: method=%s from %s", msg.Method, p.language)
		return handler.HandleNotification(msg.Method, msg.Params)
	case hasID:
		return handler.HandleResponse(msg.ID, msg.Result, msg.Error)
	default:
		return fmt.Errorf("malformed JSON-RPC message: no id and no method")
	}
}

// CreateMessage creates a JSON-RPC request message
func CreateMessage(method string, id interface{}, params interface{}) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// CreateNotification creates a JSON-RPC notification (no id)
func CreateNotification(method string, params interface{}) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}
}

// CreateResponse creates a JSON-RPC response message
func CreateResponse(id interface{}, result interface{}, err *RPCError) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
		Error:   err,
	}
}

// NewRPCError creates a new RPCError with the specified code and message
func NewRPCError(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}
