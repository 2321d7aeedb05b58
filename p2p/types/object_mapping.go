package types

import (
	"reflect"
	"sync"
)

// ForkDigest identifies a chain+fork: the first 4 bytes of a hash over fork version and
// genesis validator root (see GLOSSARY).
type ForkDigest [4]byte

// TopicDataTypeFunc produces a fresh zero-value pointer for a Req/Resp or gossip message
// type. Message construction is fork-polymorphic: a fork digest in the chunk's context bytes
// (or a gossip topic's fork-digest component) selects the concrete schema.
type TopicDataTypeFunc func() interface{}

var (
	dataMapMu sync.RWMutex
	// messageMap maps fork digest to the constructor for the schema effective in that fork.
	// The payload itself is opaque SSZ bytes (out of scope, §1); only selecting which Go type
	// to decode into is in scope here.
	messageMap = map[string]map[ForkDigest]TopicDataTypeFunc{}
)

// RegisterForkMapping installs the constructor used for a (message name, fork digest) pair.
// Call during protocol-descriptor registration (C5); panics on duplicate registration since
// that indicates a programming error at mount time (§7, "local programming" class).
func RegisterForkMapping(name string, digest ForkDigest, ctor TopicDataTypeFunc) {
	dataMapMu.Lock()
	defer dataMapMu.Unlock()
	byDigest, ok := messageMap[name]
	if !ok {
		byDigest = map[ForkDigest]TopicDataTypeFunc{}
		messageMap[name] = byDigest
	}
	if _, exists := byDigest[digest]; exists {
		panic("p2p/types: duplicate fork mapping registered for " + name)
	}
	byDigest[digest] = ctor
}

// ConstructorForDigest returns the registered constructor for (name, digest), or false if the
// peer's context bytes name an unrecognized fork.
func ConstructorForDigest(name string, digest ForkDigest) (TopicDataTypeFunc, bool) {
	dataMapMu.RLock()
	defer dataMapMu.RUnlock()
	byDigest, ok := messageMap[name]
	if !ok {
		return nil, false
	}
	ctor, ok := byDigest[digest]
	return ctor, ok
}

// ResetForkMappings clears all registrations; exposed for test isolation between suites that
// each mount their own protocol set.
func ResetForkMappings() {
	dataMapMu.Lock()
	defer dataMapMu.Unlock()
	messageMap = map[string]map[ForkDigest]TopicDataTypeFunc{}
}

// rpcTopicMapping and its inverse rpcTypeMapping map a wire protocol id to a zero-value Go
// message and a reflect.Type back to the protocol id (filled by RegisterRPCTopic, read by
// RPCTopicForType), mirroring the teacher's RPCTopicMappings/RPCTypeMapping.
var (
	topicMapMu        sync.RWMutex
	rpcTopicMapping   = map[string]interface{}{}
	rpcTypeMapping    = map[reflect.Type]string{}
)

// RegisterRPCTopic associates a wire protocol id (sans encoding suffix) with a zero-value
// request message used purely for reflect.TypeOf lookups.
func RegisterRPCTopic(protocolID string, zeroValue interface{}) {
	topicMapMu.Lock()
	defer topicMapMu.Unlock()
	rpcTopicMapping[protocolID] = zeroValue
	rpcTypeMapping[reflect.TypeOf(zeroValue)] = protocolID
}

// RPCTopicForType returns the protocol id registered for a given Go type, if any.
func RPCTopicForType(t reflect.Type) (string, bool) {
	topicMapMu.RLock()
	defer topicMapMu.RUnlock()
	id, ok := rpcTypeMapping[t]
	return id, ok
}
