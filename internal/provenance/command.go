package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/provenance/internal/ir"
)

// Command describes an operation to push.
type Command struct {
	Meta       ActionMeta
	FunctionID string
	Inputs     []ObjectRef
	Parameters ir.IRObject
}

// Call is what a command function receives.
type Call struct {
	// Action is the action node being executed.
	Action ActionNode

	Inputs     []ObjectNode
	Parameters ir.IRObject

	// Graph gives the command limited access to the graph it runs in.
	Graph *Handle

	// Budget is the advisory time share for this step of a replay chain.
	// Zero means no budget was given.
	Budget time.Duration

	// Replay is true when the action executed before.
	Replay bool
}

// InverseFunc builds the command that undoes an action from the objects it
// required, created and removed. It must be deterministic.
type InverseFunc func(inputs, created, removed []ObjectNode) Command

// CommandResult is what a command function returns on success.
type CommandResult struct {
	// Created and Removed list the objects the command produced and
	// deleted, in a stable order. On replay they are matched to the
	// recorded objects by position.
	Created []ObjectRef
	Removed []ObjectRef

	// Inverse, when set, is cached on the action and used the first time
	// an undo is requested.
	Inverse InverseFunc

	// Consumed is the part of the budget the command used.
	Consumed time.Duration
}

// CommandFunc executes a command.
type CommandFunc func(ctx context.Context, call *Call) (*CommandResult, error)

// RegisterOption configures a registered command.
type RegisterOption func(*commandEntry) error

// WithSchema validates parameter bags against a JSON Schema document
// before the command is recorded.
func WithSchema(schemaJSON string) RegisterOption {
	return func(e *commandEntry) error {
		c := jsonschema.NewCompiler()
		url := e.id + ".schema.json"
		if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
			return fmt.Errorf("schema for %s: %w", e.id, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("schema for %s: %w", e.id, err)
		}
		e.schema = s
		return nil
	}
}

// WithInverse sets the inverse used when an action was restored from a
// dump and the inverse its command returned at run time is gone.
func WithInverse(build func(params ir.IRObject) InverseFunc) RegisterOption {
	return func(e *commandEntry) error {
		e.inverse = build
		return nil
	}
}

type commandEntry struct {
	id      string
	fn      CommandFunc
	schema  *jsonschema.Schema
	inverse func(params ir.IRObject) InverseFunc
}

// Registry maps function ids to command functions.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*commandEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*commandEntry)}
}

// Register adds fn under id, replacing any previous registration.
func (r *Registry) Register(id string, fn CommandFunc, opts ...RegisterOption) error {
	if id == "" {
		return fmt.Errorf("register: empty function id")
	}
	if fn == nil {
		return fmt.Errorf("register %s: nil command function", id)
	}
	e := &commandEntry{id: id, fn: fn}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
	return nil
}

// RegisterTyped registers a command whose parameter bag is decoded into P.
// A bag that does not decode fails with ErrInvalidParameters.
func RegisterTyped[P any](r *Registry, id string, fn func(ctx context.Context, call *Call, params P) (*CommandResult, error), opts ...RegisterOption) error {
	return r.Register(id, func(ctx context.Context, call *Call) (*CommandResult, error) {
		var p P
		if err := DecodeParameters(call.Parameters, &p); err != nil {
			return nil, err
		}
		return fn(ctx, call, p)
	}, opts...)
}

// DecodeParameters decodes a parameter bag into v through its JSON form.
func DecodeParameters(params ir.IRObject, v any) error {
	if params == nil {
		params = ir.IRObject{}
	}
	data, err := params.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return nil
}

// EncodeParameters converts a struct or map into a parameter bag through
// its JSON form. Fractional numbers are rejected.
func EncodeParameters(v any) (ir.IRObject, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	var obj ir.IRObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	return obj, nil
}

func (r *Registry) lookup(id string) (*commandEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, id)
	}
	return e, nil
}

// Resolve returns the command function registered under id.
func (r *Registry) Resolve(id string) (CommandFunc, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.fn, nil
}

// Validate checks params against the schema registered for id, if any.
func (r *Registry) Validate(id string, params ir.IRObject) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if e.schema == nil {
		return nil
	}
	if params == nil {
		params = ir.IRObject{}
	}
	data, err := params.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParameters, id, err)
	}
	return nil
}

// staticInverse returns the registered fallback inverse for an action.
func (r *Registry) staticInverse(id string, params ir.IRObject) InverseFunc {
	e, err := r.lookup(id)
	if err != nil || e.inverse == nil {
		return nil
	}
	return e.inverse(params)
}

// IDs returns the registered function ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handle is the view of the graph given to command functions. Commands run
// on the loop goroutine and must use the handle rather than the public
// Graph API, which would deadlock.
type Handle struct {
	g   *Graph
	ctx context.Context
}

// Object returns the object node with id.
func (h *Handle) Object(id int64) (ObjectNode, bool) {
	return h.g.objectByID(id)
}

// FindObject finds a tracked object by reference without creating one.
func (h *Handle) FindObject(ref ObjectRef) (ObjectNode, bool) {
	return h.g.findObject(ref)
}

// SetObjectName renames an object and persists the change.
func (h *Handle) SetObjectName(o ObjectNode, name string) error {
	return h.g.setAttr(h.ctx, o.Node, attrName, ir.IRString(name))
}

// SetObjectValue replaces the runtime value of an object.
func (h *Handle) SetObjectValue(o ObjectNode, v any) {
	h.g.setPayload(o.Node, v)
}

// Current returns the state the command is executed from.
func (h *Handle) Current() StateNode {
	s, _ := h.g.act()
	return s
}
