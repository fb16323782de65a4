package js

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbinitiative/zentask/internal/appcontext"
	"github.com/pbinitiative/zentask/pkg/script"
)

const (
	inputVariable      = "__input"
	instanceIdVariable = "processInstanceId"
	programCacheSize   = 256
)

type JsRuntime struct {
	pool     *script.RunnerPool[*JsRunner]
	programs *lru.Cache[string, *goja.Program]
}

var _ script.JsRuntime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) (*JsRuntime, error) {
	pool, err := script.NewRunnerPool(ctx, newJsRunner, maxVmPoolSize, minVmPoolSize)
	if err != nil {
		return nil, err
	}
	programs, err := lru.New[string, *goja.Program](programCacheSize)
	if err != nil {
		return nil, err
	}
	return &JsRuntime{pool: pool, programs: programs}, nil
}

// RunScript runs the script body as a function of `data` and returns the data it leaves behind.
// The script may also return a replacement object. The caller's map is never modified.
func (r *JsRuntime) RunScript(ctx context.Context, source string, data map[string]any) (map[string]any, error) {
	program, err := r.compile(source)
	if err != nil {
		return nil, err
	}
	input, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize script input: %w", err)
	}

	runner, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	res, err := runner.run(ctx, program, string(input))
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		r.pool.Discard()
	} else {
		r.pool.Put(runner)
	}
	if err != nil {
		return nil, fmt.Errorf("error running script \"%s\": %w", source, err)
	}
	return res, nil
}

func (r *JsRuntime) compile(source string) (*goja.Program, error) {
	if p, ok := r.programs.Get(source); ok {
		return p, nil
	}
	wrapped := fmt.Sprintf("JSON.stringify((function(data) {\n%s\n;return data;})(JSON.parse(%s)))", source, inputVariable)
	p, err := goja.Compile("script", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script \"%s\": %w", source, err)
	}
	r.programs.Add(source, p)
	return p, nil
}

type JsRunner struct {
	vm *goja.Runtime
}

func newJsRunner() *JsRunner {
	return &JsRunner{vm: goja.New()}
}

func (r *JsRunner) run(ctx context.Context, program *goja.Program, input string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		r.vm.ClearInterrupt()
	}()

	if err := r.vm.Set(inputVariable, input); err != nil {
		return nil, err
	}
	if id, ok := appcontext.ProcessInstanceIdFromContext(ctx); ok {
		if err := r.vm.Set(instanceIdVariable, id); err != nil {
			return nil, err
		}
	} else if err := r.vm.Set(instanceIdVariable, goja.Undefined()); err != nil {
		return nil, err
	}

	v, err := r.vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	out, ok := v.Export().(string)
	if !ok {
		return nil, fmt.Errorf("script did not produce an object")
	}
	res := map[string]any{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return nil, fmt.Errorf("script did not produce an object: %w", err)
	}
	return res, nil
}
