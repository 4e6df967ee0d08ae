// Package core implements the cooperative actor runtime.
//
// Actors own their state and talk to each other only through typed
// messages. Each actor carries a set of components: a two-lane mailbox
// (NetComponent), request/response (RpcComponent), multi-hop forwarding
// (PipeComponent), publish/subscribe (EventComponent), a bounded async job
// pool (IOComponent) and deferred callbacks (TimerComponent). A Scheduler
// grants every actor time slices through Tick and wakes it when work
// arrives.
package core
