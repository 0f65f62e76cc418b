package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"lsmcp/src/internal/common"
	"lsmcp/src/internal/errors"
	"lsmcp/src/internal/types"
)

// RequestHandler answers a server-initiated request. The returned value is
// marshaled as the response result.
type RequestHandler func(params json.RawMessage) (interface{}, error)

// NotificationHandler consumes a server-initiated notification.
type NotificationHandler func(params json.RawMessage)

// callResult is what a pending call eventually receives: exactly one of the
// three fields is meaningful.
type callResult struct {
	result json.RawMessage
	rpcErr *RPCError
	err    error
}

// pendingCall tracks one in-flight request awaiting its response.
type pendingCall struct {
	method    string
	createdAt time.Time
	respCh    chan callResult
}

// Correlator implements JSON-RPC 2.0 request/response/notification
// semantics for one language server over the framer. It owns the request id
// counter, the pending-call table, and the single serialized writer onto
// the server's stdin. It is the MessageHandler the framer's read loop feeds.
type Correlator struct {
	language string
	framer   *LSPFramer

	writeMu sync.Mutex
	writer  io.Writer

	mu      sync.Mutex
	pending map[string]*pendingCall
	nextID  int64
	failed  error

	handlerMu    sync.RWMutex
	reqHandlers  map[string]RequestHandler
	noteHandlers map[string]NotificationHandler
}

// NewCorrelator creates a correlator writing requests to w, which is the
// server's stdin and must not be written by anyone else.
func NewCorrelator(language string, framer *LSPFramer, w io.Writer) *Correlator {
	return &Correlator{
		language:     language,
		framer:       framer,
		writer:       w,
		pending:      make(map[string]*pendingCall),
		reqHandlers:  make(map[string]RequestHandler),
		noteHandlers: make(map[string]NotificationHandler),
	}
}

// pendingKey renders a wire id for table lookup. Raw JSON is kept as-is, so
// the number 1 and the string "1" map to distinct keys and ids are never
// cross-matched between wire types.
func pendingKey(id json.RawMessage) string {
	return string(id)
}

// Call sends a request and blocks until the matching response, the timeout,
// or a session failure. A response arriving after the timeout finds no
// pending entry and is discarded.
func (c *Correlator) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if c.failed != nil {
		failed := c.failed
		c.mu.Unlock()
		return nil, failed
	}
	c.nextID++
	id := c.nextID
	key := strconv.FormatInt(id, 10)
	call := &pendingCall{
		method:    method,
		createdAt: time.Now(),
		respCh:    make(chan callResult, 1),
	}
	c.pending[key] = call
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	msg := CreateMessage(method, id, params)
	if err := c.write(msg); err != nil {
		common.LSPLogger.Error("Failed to send request: method=%s, id=%d, error=%v", method, id, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	callCtx, cancel := common.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-call.respCh:
		if res.err != nil {
			return nil, res.err
		}
		if res.rpcErr != nil {
			return nil, errors.NewLSPError(res.rpcErr.Code, res.rpcErr.Message, res.rpcErr.Data)
		}
		return res.result, nil
	case <-callCtx.Done():
		if callCtx.Err() == context.Canceled {
			return nil, callCtx.Err()
		}
		// Best effort: tell the server we gave up. The call rejects
		// regardless of whether the server honors it.
		if err := c.Notify(types.MethodCancelRequest, map[string]interface{}{"id": id}); err != nil {
			common.LSPLogger.Debug("Failed to send cancel for id=%d: %v", id, err)
		}
		common.LSPLogger.Warn("Request timeout: method=%s, id=%d, timeout=%v, language=%s", method, id, timeout, c.language)
		return nil, errors.NewTimeoutError(method, c.language, timeout)
	}
}

// Notify sends a notification. No id is allocated and no response is
// expected.
func (c *Correlator) Notify(method string, params interface{}) error {
	return c.write(CreateNotification(method, params))
}

// OnRequest registers the handler for a server-initiated request method.
// Exactly one handler per method; later registrations replace earlier ones.
func (c *Correlator) OnRequest(method string, handler RequestHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.reqHandlers[method] = handler
}

// OnNotification registers the handler for a server-initiated notification
// method.
func (c *Correlator) OnNotification(method string, handler NotificationHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.noteHandlers[method] = handler
}

// FailAll rejects every pending call with err and makes all future calls
// fail fast with the same error. Used when the transport breaks or the
// server process exits.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	if c.failed == nil {
		c.failed = err
	}
	calls := make([]*pendingCall, 0, len(c.pending))
	for _, call := range c.pending {
		calls = append(calls, call)
	}
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		select {
		case call.respCh <- callResult{err: err}:
		default:
		}
	}
}

// Failed reports the failure that stopped this correlator, if any.
func (c *Correlator) Failed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// HandleResponse routes a response to the pending call with the matching id.
// Responses for unknown ids (typically replies that arrived after their
// call timed out) are dropped.
func (c *Correlator) HandleResponse(id json.RawMessage, result json.RawMessage, rpcErr *RPCError) error {
	key := pendingKey(id)

	c.mu.Lock()
	call, exists := c.pending[key]
	if exists {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !exists {
		common.LSPLogger.Debug("Discarding response with no pending call: id=%s, language=%s", key, c.language)
		return nil
	}

	select {
	case call.respCh <- callResult{result: result, rpcErr: rpcErr}:
	default:
		common.LSPLogger.Warn("Pending call already completed: id=%s, method=%s", key, call.method)
	}
	return nil
}

// HandleRequest answers a server-initiated request. Methods without a
// registered handler get an explicit null result so the server does not
// wait forever.
func (c *Correlator) HandleRequest(method string, id json.RawMessage, params json.RawMessage) error {
	c.handlerMu.RLock()
	handler, exists := c.reqHandlers[method]
	c.handlerMu.RUnlock()

	if !exists {
		return c.write(CreateResponse(id, json.RawMessage("null"), nil))
	}

	result, err := handler(params)
	if err != nil {
		return c.write(CreateResponse(id, nil, NewRPCError(InternalError, err.Error(), nil)))
	}
	if result == nil {
		return c.write(CreateResponse(id, json.RawMessage("null"), nil))
	}
	return c.write(CreateResponse(id, result, nil))
}

// HandleNotification routes a server notification to its handler, if any.
// Unhandled notifications are dropped without stalling the read loop.
func (c *Correlator) HandleNotification(method string, params json.RawMessage) error {
	c.handlerMu.RLock()
	handler, exists := c.noteHandlers[method]
	c.handlerMu.RUnlock()

	if exists {
		handler(params)
	}
	return nil
}

// write serializes all frames onto the single shared stdin sink. Requests,
// notifications, and responses to server requests all pass through here so
// partial frames never interleave.
func (c *Correlator) write(msg JSONRPCMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteMessage(c.writer, msg)
}
