package script

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/google/shlex"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/slok/stepbridge/internal/bridge"
	"github.com/slok/stepbridge/internal/model"
)

const localStep = "stepbridge.step"

// step is the per thread state of a running script.
type step struct {
	ctx    context.Context
	bridge Bridge
	output io.Writer
	env    model.EnvSnapshot
}

func stepFromThread(thread *starlark.Thread) (*step, error) {
	s, ok := thread.Local(localStep).(*step)
	if !ok {
		return nil, fmt.Errorf("thread is not running a step script")
	}
	return s, nil
}

func platformModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "platform",
		Members: starlark.StringDict{
			"system": starlark.NewBuiltin("platform.system", platformSystem),
		},
	}
}

func platformSystem(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	s, err := stepFromThread(thread)
	if err != nil {
		return nil, err
	}
	return starlark.String(s.bridge.Platform(s.ctx)), nil
}

func osModule(env model.EnvSnapshot) *starlarkstruct.Module {
	environ := starlark.NewDict(len(env))
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		_ = environ.SetKey(starlark.String(k), starlark.String(env[k]))
	}
	environ.Freeze()

	return &starlarkstruct.Module{
		Name: "os",
		Members: starlark.StringDict{
			"environment": environ,
			"getenv":      starlark.NewBuiltin("os.getenv", osGetenv),
		},
	}
}

func osGetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name string
		def  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	s, err := stepFromThread(thread)
	if err != nil {
		return nil, err
	}

	v, ok := s.env[name]
	if !ok {
		return def, nil
	}
	return starlark.String(v), nil
}

func subprocessModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "subprocess",
		Members: starlark.StringDict{
			"run": starlark.NewBuiltin("subprocess.run", subprocessRun),
		},
	}
}

var completedProcess = starlark.String("CompletedProcess")

func subprocessRun(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		cmd           starlark.Value
		cwd           starlark.Value = starlark.None
		env           starlark.Value = starlark.None
		shell         bool
		timeout       starlark.Value = starlark.None
		check         bool
		captureOutput = true
		clearEnv      bool
	)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"cmd", &cmd,
		"cwd?", &cwd,
		"env?", &env,
		"shell?", &shell,
		"timeout?", &timeout,
		"check?", &check,
		"capture_output?", &captureOutput,
		"clear_env?", &clearEnv,
	)
	if err != nil {
		return nil, err
	}

	s, err := stepFromThread(thread)
	if err != nil {
		return nil, err
	}

	req := bridge.RunRequest{}
	switch c := cwd.(type) {
	case starlark.NoneType:
	case starlark.String:
		req.WorkingDir = string(c)
	default:
		return nil, fmt.Errorf("%s: for parameter cwd: got %s, want string or None", fn.Name(), cwd.Type())
	}

	switch c := cmd.(type) {
	case starlark.String:
		if shell {
			req.Shell = string(c)
			break
		}
		req.Args, err = shlex.Split(string(c))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid command %q: %w", fn.Name(), string(c), err)
		}
	case starlark.Iterable:
		if shell {
			return nil, fmt.Errorf("%s: shell mode requires a string command", fn.Name())
		}
		req.Args, err = stringList(c)
		if err != nil {
			return nil, fmt.Errorf("%s: for parameter cmd: %w", fn.Name(), err)
		}
	default:
		return nil, fmt.Errorf("%s: for parameter cmd: got %s, want string or list", fn.Name(), cmd.Type())
	}
	if len(req.Args) == 0 && req.Shell == "" {
		return nil, fmt.Errorf("%s: command is empty", fn.Name())
	}

	vars, err := stringDict(env)
	if err != nil {
		return nil, fmt.Errorf("%s: for parameter env: %w", fn.Name(), err)
	}
	// An empty env inherits the ambient environment, clearing it is explicit.
	if len(vars) > 0 || clearEnv {
		req.Env = model.ReplaceEnv(vars)
	}

	if timeout != starlark.None {
		d, err := timeoutDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		req.Timeout = d
	}

	if !captureOutput {
		req.Stdout = s.output
		req.Stderr = s.output
	}

	res, err := s.bridge.Run(s.ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}

	if check && res.ExitCode != 0 {
		return nil, fmt.Errorf("%s: %w: %d", fn.Name(), ErrCommandFailed, res.ExitCode)
	}

	return starlarkstruct.FromStringDict(completedProcess, starlark.StringDict{
		"returncode": starlark.MakeInt(res.ExitCode),
		"stdout":     starlark.String(res.Stdout),
		"stderr":     starlark.String(res.Stderr),
		"completed":  starlark.Bool(res.Completed),
	}), nil
}

// maxTimeoutSeconds is the largest timeout a time.Duration can hold.
var maxTimeoutSeconds = time.Duration(math.MaxInt64).Seconds()

// timeoutDuration converts a timeout in seconds. None is the only way to run without
// timeout, so zero is rejected like any other non positive value.
func timeoutDuration(v starlark.Value) (time.Duration, error) {
	secs, ok := starlark.AsFloat(v)
	if !ok || math.IsNaN(secs) {
		return 0, fmt.Errorf("timeout must be a number of seconds, got %s: %w", v, model.ErrNotValid)
	}
	if secs <= 0 || secs >= maxTimeoutSeconds {
		return 0, fmt.Errorf("timeout must be greater than 0 and less than %.0f seconds, got %s: %w", maxTimeoutSeconds, v, model.ErrNotValid)
	}
	return max(time.Duration(secs*float64(time.Second)), time.Nanosecond), nil
}

func stringList(it starlark.Iterable) ([]string, error) {
	iter := it.Iterate()
	defer iter.Done()

	var list []string
	var v starlark.Value
	for iter.Next(&v) {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("got %s element, want string", v.Type())
		}
		list = append(list, s)
	}
	return list, nil
}

func stringDict(v starlark.Value) (model.EnvSnapshot, error) {
	env := model.EnvSnapshot{}
	if v == starlark.None {
		return env, nil
	}
	d, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("got %s, want dict or None", v.Type())
	}
	for _, item := range d.Items() {
		k, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("got %s key, want string", item[0].Type())
		}
		v, ok := starlark.AsString(item[1])
		if !ok {
			return nil, fmt.Errorf("got %s value for %q, want string", item[1].Type(), k)
		}
		env[k] = v
	}
	return env, nil
}
