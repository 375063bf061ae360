package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/provenance/internal/ir"
	"github.com/roach88/provenance/internal/provenance"
)

// Item is the external value behind a demo object.
type Item struct {
	Name  string
	Value int64
}

// Demo function ids.
const (
	FnCreate = "create"
	FnRemove = "remove"
	FnRename = "rename"
	FnSet    = "set"
	FnFail   = "fail"
)

// errDemoFailure is returned by the fail command.
var errDemoFailure = errors.New("demo command failed on purpose")

const (
	nameSchema = `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"from": {"type": "string"},
			"value": {"type": "integer"}
		}
	}`
	valueSchema = `{
		"type": "object",
		"required": ["value"],
		"properties": {
			"value": {"type": "integer"},
			"from": {"type": "integer"}
		}
	}`
)

type nameParams struct {
	Name  string `json:"name"`
	From  string `json:"from,omitempty"`
	Value int64  `json:"value,omitempty"`
}

type valueParams struct {
	Value int64 `json:"value"`
	From  int64 `json:"from"`
}

// RegisterDemo registers the demo command set: create, remove, rename and
// set over Items, each invertible, plus fail.
//
// Every command also registers a parameter-based inverse, so graphs
// restored from a dump stay undoable.
func RegisterDemo(r *provenance.Registry) error {
	if err := provenance.RegisterTyped(r, FnCreate, demoCreate,
		provenance.WithSchema(nameSchema),
		provenance.WithInverse(func(ir.IRObject) provenance.InverseFunc { return undoCreate }),
	); err != nil {
		return err
	}
	if err := r.Register(FnRemove, demoRemove,
		provenance.WithInverse(func(ir.IRObject) provenance.InverseFunc { return undoRemove(0) }),
	); err != nil {
		return err
	}
	if err := provenance.RegisterTyped(r, FnRename, demoRename,
		provenance.WithSchema(nameSchema),
		provenance.WithInverse(func(params ir.IRObject) provenance.InverseFunc {
			return undoRename(params.String("from"))
		}),
	); err != nil {
		return err
	}
	if err := provenance.RegisterTyped(r, FnSet, demoSet,
		provenance.WithSchema(valueSchema),
		provenance.WithInverse(func(params ir.IRObject) provenance.InverseFunc {
			return undoSet(params.Int("from"))
		}),
	); err != nil {
		return err
	}
	return r.Register(FnFail, func(context.Context, *provenance.Call) (*provenance.CommandResult, error) {
		return nil, errDemoFailure
	})
}

func demoCreate(_ context.Context, call *provenance.Call, p nameParams) (*provenance.CommandResult, error) {
	item := &Item{Name: p.Name, Value: p.Value}
	return &provenance.CommandResult{
		Created: []provenance.ObjectRef{{Name: p.Name, Category: provenance.CategoryData, Value: item}},
		Inverse: undoCreate,
	}, nil
}

func demoRemove(_ context.Context, call *provenance.Call) (*provenance.CommandResult, error) {
	if len(call.Inputs) != 1 {
		return nil, fmt.Errorf("remove: want 1 input, got %d", len(call.Inputs))
	}
	o := call.Inputs[0]
	var value int64
	if item, ok := o.Value().(*Item); ok {
		value = item.Value
	}
	return &provenance.CommandResult{
		Removed: []provenance.ObjectRef{provenance.Ref(o)},
		Inverse: undoRemove(value),
	}, nil
}

func demoRename(_ context.Context, call *provenance.Call, p nameParams) (*provenance.CommandResult, error) {
	if len(call.Inputs) != 1 {
		return nil, fmt.Errorf("rename: want 1 input, got %d", len(call.Inputs))
	}
	o := call.Inputs[0]
	old := o.Name()
	if err := call.Graph.SetObjectName(o, p.Name); err != nil {
		return nil, err
	}
	if item, ok := o.Value().(*Item); ok {
		item.Name = p.Name
	}
	return &provenance.CommandResult{Inverse: undoRename(old)}, nil
}

func demoSet(_ context.Context, call *provenance.Call, p valueParams) (*provenance.CommandResult, error) {
	if len(call.Inputs) != 1 {
		return nil, fmt.Errorf("set: want 1 input, got %d", len(call.Inputs))
	}
	item, ok := call.Inputs[0].Value().(*Item)
	if !ok {
		return nil, fmt.Errorf("set: object %s has no value", call.Inputs[0].Name())
	}
	old := item.Value
	item.Value = p.Value
	return &provenance.CommandResult{Inverse: undoSet(old)}, nil
}

func undoCreate(_, created, _ []provenance.ObjectNode) provenance.Command {
	return RemoveCommand(created[0])
}

func undoRemove(value int64) provenance.InverseFunc {
	return func(_, _, removed []provenance.ObjectNode) provenance.Command {
		return CreateCommand(removed[0].Name(), value)
	}
}

func undoRename(old string) provenance.InverseFunc {
	return func(inputs, _, _ []provenance.ObjectNode) provenance.Command {
		return RenameCommand(inputs[0], old)
	}
}

func undoSet(old int64) provenance.InverseFunc {
	return func(inputs, _, _ []provenance.ObjectNode) provenance.Command {
		return SetCommand(inputs[0], old)
	}
}

// CreateCommand creates an Item.
func CreateCommand(name string, value int64) provenance.Command {
	params := ir.Object(ir.O("name", ir.IRString(name)))
	if value != 0 {
		params["value"] = ir.IRInt(value)
	}
	return provenance.Command{
		Meta:       provenance.ActionMeta{Name: "Create " + name, Category: provenance.CategoryData, Operation: provenance.OperationCreate},
		FunctionID: FnCreate,
		Parameters: params,
	}
}

// RemoveCommand removes o.
func RemoveCommand(o provenance.ObjectNode) provenance.Command {
	return provenance.Command{
		Meta:       provenance.ActionMeta{Name: "Remove " + o.Name(), Category: provenance.CategoryData, Operation: provenance.OperationRemove},
		FunctionID: FnRemove,
		Inputs:     []provenance.ObjectRef{provenance.Ref(o)},
	}
}

// RenameCommand renames o. The current name is recorded as "from".
func RenameCommand(o provenance.ObjectNode, name string) provenance.Command {
	return provenance.Command{
		Meta:       provenance.ActionMeta{Name: "Rename " + o.Name() + " to " + name, Category: provenance.CategoryData, Operation: provenance.OperationUpdate},
		FunctionID: FnRename,
		Inputs:     []provenance.ObjectRef{provenance.Ref(o)},
		Parameters: ir.Object(ir.O("name", ir.IRString(name)), ir.O("from", ir.IRString(o.Name()))),
	}
}

// SetCommand sets the value of o. The current value is recorded as "from".
func SetCommand(o provenance.ObjectNode, value int64) provenance.Command {
	var from int64
	if item, ok := o.Value().(*Item); ok {
		from = item.Value
	}
	return provenance.Command{
		Meta:       provenance.ActionMeta{Name: fmt.Sprintf("Set %s to %d", o.Name(), value), Category: provenance.CategoryVisual, Operation: provenance.OperationUpdate},
		FunctionID: FnSet,
		Inputs:     []provenance.ObjectRef{provenance.Ref(o)},
		Parameters: ir.Object(ir.O("value", ir.IRInt(value)), ir.O("from", ir.IRInt(from))),
	}
}

// DemoCommand builds the command for a push step from its function id,
// resolved inputs and YAML args.
func DemoCommand(fid string, inputs []provenance.ObjectNode, args ir.IRObject) (provenance.Command, error) {
	need := func(n int) error {
		if len(inputs) != n {
			return fmt.Errorf("%s: want %d inputs, got %d", fid, n, len(inputs))
		}
		return nil
	}
	switch fid {
	case FnCreate:
		if err := need(0); err != nil {
			return provenance.Command{}, err
		}
		return CreateCommand(args.String("name"), args.Int("value")), nil
	case FnRemove:
		if err := need(1); err != nil {
			return provenance.Command{}, err
		}
		return RemoveCommand(inputs[0]), nil
	case FnRename:
		if err := need(1); err != nil {
			return provenance.Command{}, err
		}
		return RenameCommand(inputs[0], args.String("name")), nil
	case FnSet:
		if err := need(1); err != nil {
			return provenance.Command{}, err
		}
		return SetCommand(inputs[0], args.Int("value")), nil
	default:
		refs := make([]provenance.ObjectRef, len(inputs))
		for i, o := range inputs {
			refs[i] = provenance.Ref(o)
		}
		return provenance.Command{
			Meta:       provenance.ActionMeta{Name: fid, Category: provenance.CategoryCustom},
			FunctionID: fid,
			Inputs:     refs,
			Parameters: args,
		}, nil
	}
}
