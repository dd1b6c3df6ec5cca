package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// jsTimeout bounds evaluation of a JS catalog
const jsTimeout = 2 * time.Second

// evalJS runs a CommonJS-style config file and returns module.exports as JSON.
// Both "module.exports = {...}" and "exports.x = ..." forms are supported.
func evalJS(src string) ([]byte, error) {
	vm := goja.New()

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if err := vm.Set("module", module); err != nil {
		return nil, err
	}
	if err := vm.Set("exports", exports); err != nil {
		return nil, err
	}
	_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(fmt.Errorf("require(%s) is not available in catalog files", call.Argument(0).String())))
	})
	_ = vm.Set("console", map[string]interface{}{
		"log":  func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"warn": func(goja.FunctionCall) goja.Value { return goja.Undefined() },
	})

	timer := time.AfterFunc(jsTimeout, func() {
		vm.Interrupt("catalog evaluation timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunString(src); err != nil {
		return nil, fmt.Errorf("failed to evaluate JS catalog: %w", err)
	}

	exported := module.Get("exports")
	if exported == nil || goja.IsUndefined(exported) || goja.IsNull(exported) {
		return nil, fmt.Errorf("JS catalog does not set module.exports")
	}

	data, err := json.Marshal(exported.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to convert JS catalog: %w", err)
	}
	return data, nil
}
