package core

import (
	"fmt"
	"reflect"

	"github.com/najoast/syncrt/log"
)

// rpcRequest is the family implemented by every RpcMessage instantiation.
type rpcRequest interface {
	rpcID() uint64
	rpcData() any
	rpcDataType() reflect.Type
}

// RpcMessage is a request carrying data of type D and expecting a result
// of type R.
type RpcMessage[D, R any] struct {
	ID   uint64
	Data D
}

func (m *RpcMessage[D, R]) rpcID() uint64 { return m.ID }
func (m *RpcMessage[D, R]) rpcData() any  { return m.Data }
func (m *RpcMessage[D, R]) rpcDataType() reflect.Type {
	return reflect.TypeOf((*D)(nil)).Elem()
}

// RpcSuccessMessage answers the call with the given ID.
type RpcSuccessMessage struct {
	ID     uint64
	Result any
}

// RpcFailureMessage fails the call with the given ID.
type RpcFailureMessage struct {
	ID  uint64
	Err error
}

type rpcEndpoint func(msg *NetMessage, req rpcRequest, reply *rpcReply) error

// RpcComponent correlates outgoing calls with their responses and serves
// incoming calls with registered handlers.
type RpcComponent struct {
	net    *NetComponent
	logger log.Logger

	pending   *pendingCalls
	endpoints map[reflect.Type]rpcEndpoint
}

var _ Quiescer = (*RpcComponent)(nil)

// NewRpcComponent creates an RpcComponent on top of net.
func NewRpcComponent(net *NetComponent, logger log.Logger) (*RpcComponent, error) {
	if logger == nil {
		logger = log.DefaultLogger
	}
	rc := &RpcComponent{
		net:       net,
		logger:    logger,
		pending:   newPendingCalls(),
		endpoints: make(map[reflect.Type]rpcEndpoint),
	}

	if err := RegisterOpenGeneric[rpcRequest](net, rc.onRequest); err != nil {
		return nil, err
	}
	if err := Register[*RpcSuccessMessage](net, rc.onSuccess); err != nil {
		return nil, err
	}
	if err := Register[*RpcFailureMessage](net, rc.onFailure); err != nil {
		return nil, err
	}
	return rc, nil
}

// RpcContext is handed to an rpc handler. The handler answers with
// SendSuccess or SendFailure, now or from a later Tick.
type RpcContext[D, R any] struct {
	Message *NetMessage
	Data    D
	reply   *rpcReply
}

// Source returns the caller.
func (c *RpcContext[D, R]) Source() ActorHandle {
	return c.Message.Source
}

// SendSuccess answers the call with result.
func (c *RpcContext[D, R]) SendSuccess(result R) error {
	return c.reply.success(result)
}

// SendFailure fails the call with err.
func (c *RpcContext[D, R]) SendFailure(err error) error {
	return c.reply.failure(err)
}

type rpcReply struct {
	rc      *RpcComponent
	caller  ActorHandle
	id      uint64
	replied bool
}

func (r *rpcReply) success(result any) error {
	if r.replied {
		return ErrAlreadyReplied
	}
	r.replied = true
	return r.rc.respond(r.caller, &RpcSuccessMessage{ID: r.id, Result: result})
}

func (r *rpcReply) failure(err error) error {
	if r.replied {
		return ErrAlreadyReplied
	}
	r.replied = true
	return r.rc.respond(r.caller, &RpcFailureMessage{ID: r.id, Err: err})
}

func (rc *RpcComponent) respond(caller ActorHandle, response any) error {
	if err := rc.net.Send(caller, response); err != nil {
		rc.logger.Errorf("rpc response from %s to %s failed: %v", rc.net.Self(), caller, err)
		return err
	}
	return nil
}

// RegisterRpc serves calls whose data is of type D. Returning an error
// from handler fails the call unless it was already answered.
func RegisterRpc[D, R any](rc *RpcComponent, handler func(*RpcContext[D, R]) error) error {
	t := reflect.TypeOf((*D)(nil)).Elem()
	if _, exists := rc.endpoints[t]; exists {
		return fmt.Errorf("%w: rpc %s in %s", ErrDuplicateHandler, t, rc.net.Self())
	}

	rc.endpoints[t] = func(msg *NetMessage, req rpcRequest, reply *rpcReply) error {
		data, _ := req.rpcData().(D)
		return handler(&RpcContext[D, R]{Message: msg, Data: data, reply: reply})
	}
	return nil
}

// Rpc is returned by Call so the caller can attach continuations. The
// response is only processed on a later Tick of the caller, so attaching
// right after the call is safe.
type Rpc[S, C, U, R any] struct {
	call *hiddenContext[S, C, U, R]
}

// Success sets the continuation for a successful response.
func (r *Rpc[S, C, U, R]) Success(fn func(state S, callContext C, userContext U, result R)) *Rpc[S, C, U, R] {
	r.call.success = fn
	return r
}

// Failure sets the continuation for a failed call.
func (r *Rpc[S, C, U, R]) Failure(fn func(state S, callContext C, userContext U, err error)) *Rpc[S, C, U, R] {
	r.call.failure = fn
	return r
}

// Call sends data to dest and expects a result of type R. With a zero
// dest the call succeeds locally with a zero result.
func Call[R, S, C, U, D any](rc *RpcComponent, state S, callContext C, userContext U, dest ActorHandle, data D) *Rpc[S, C, U, R] {
	return call[R](rc, state, callContext, userContext, dest, data, false)
}

// CallCritical is Call on the critical lane.
func CallCritical[R, S, C, U, D any](rc *RpcComponent, state S, callContext C, userContext U, dest ActorHandle, data D) *Rpc[S, C, U, R] {
	return call[R](rc, state, callContext, userContext, dest, data, true)
}

func call[R, S, C, U, D any](rc *RpcComponent, state S, callContext C, userContext U, dest ActorHandle, data D, critical bool) *Rpc[S, C, U, R] {
	hc := &hiddenContext[S, C, U, R]{state: state, callContext: callContext, userContext: userContext}
	id := rc.pending.add(hc)

	if dest.IsZero() {
		rc.net.sendLocal(&RpcSuccessMessage{ID: id}, critical)
		return &Rpc[S, C, U, R]{call: hc}
	}

	if err := rc.net.send(dest, &RpcMessage[D, R]{ID: id, Data: data}, critical); err != nil {
		rc.net.sendLocal(&RpcFailureMessage{ID: id, Err: err}, critical)
	}
	return &Rpc[S, C, U, R]{call: hc}
}

func (rc *RpcComponent) onRequest(ctx *NetContext[rpcRequest]) {
	req := ctx.Data
	reply := &rpcReply{rc: rc, caller: ctx.Message.Source, id: req.rpcID()}

	endpoint, exists := rc.endpoints[req.rpcDataType()]
	if !exists {
		_ = reply.failure(&InvalidEndpointError{
			Kind:        "rpc",
			MessageType: req.rpcDataType().String(),
			Actor:       rc.net.Self(),
		})
		return
	}

	if err := rc.invoke(endpoint, ctx.Message, req, reply); err != nil {
		if reply.replied {
			rc.logger.Warnf("rpc handler for %s in %s failed after answering: %v", req.rpcDataType(), rc.net.Self(), err)
			return
		}
		_ = reply.failure(err)
	}
}

func (rc *RpcComponent) invoke(endpoint rpcEndpoint, msg *NetMessage, req rpcRequest, reply *rpcReply) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
			rc.logger.Errorf("rpc handler for %s in %s failed: %+v", req.rpcDataType(), rc.net.Self(), err)
		}
	}()
	return endpoint(msg, req, reply)
}

func (rc *RpcComponent) onSuccess(ctx *NetContext[*RpcSuccessMessage]) {
	call, exists := rc.pending.take(ctx.Data.ID)
	if !exists {
		rc.logger.Warnf("rpc success for unknown call %d in %s, discarding", ctx.Data.ID, rc.net.Self())
		return
	}
	if err := call.complete(ctx.Data.Result); err != nil {
		rc.logger.Errorf("rpc %d in %s: %v", ctx.Data.ID, rc.net.Self(), err)
	}
}

func (rc *RpcComponent) onFailure(ctx *NetContext[*RpcFailureMessage]) {
	call, exists := rc.pending.take(ctx.Data.ID)
	if !exists {
		rc.logger.Warnf("rpc failure for unknown call %d in %s, discarding", ctx.Data.ID, rc.net.Self())
		return
	}
	call.fail(ctx.Data.Err)
}

// Pending returns the number of calls awaiting a response.
func (rc *RpcComponent) Pending() int {
	return rc.pending.len()
}

// IsQuiescent reports whether no call is outstanding.
func (rc *RpcComponent) IsQuiescent() bool {
	return rc.Pending() == 0
}
