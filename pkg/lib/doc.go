// Package lib provides a Go SDK to run pipeline step commands on execution backends.
//
// This package allows Go pipelines to bridge the commands of their steps to the
// target where they must run (the local host, a running container, a pod, an SSH
// host or a stepbridge agent) without shelling out to the stepbridge CLI binary.
//
// # Quick Start
//
// Create a client bound to a backend and run commands:
//
//	client, err := lib.New(ctx, lib.Config{
//	    Backend: lib.BackendDocker,
//	    Docker:  &lib.DockerConfig{Container: "builder"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Run(ctx, lib.RunOpts{Args: []string{"go", "test", "./..."}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.ExitCode)
//
// A non zero exit code is not an error, errors are returned only when the command
// couldn't run to completion. Check their kind with [errors.Is]:
//
//   - [ErrSpawnFailure]: the command couldn't be started (e.g. missing executable).
//   - [ErrTimeoutExceeded]: the command timeout expired.
//   - [ErrBackendUnavailable]: the backend couldn't be reached.
//   - [ErrCancelled]: the context was cancelled.
//
// The output produced before a failure is available with [PartialResult].
//
// # Environment
//
// Commands inherit the ambient environment of the backend unless [RunOpts].Env or
// [RunOpts].ClearEnv are set, in that case the command runs with exactly those
// variables. The ambient environment is returned by [Client.Environment].
//
// # Scripts
//
// Step scripts written in Starlark can be run with [Client.RunScript]. Scripts have
// the `platform`, `os` and `subprocess` modules:
//
//	if platform.system() == "Windows":
//	    subprocess.run("dir", shell=True, check=True)
//	else:
//	    subprocess.run(["ls", "-la"], cwd=os.getenv("HOME"), check=True)
//
// # History
//
// Every execution is recorded on the execution history, queried with [Client.History].
// The history is kept in memory unless [Config].DBPath sets a SQLite database.
//
// # Testing
//
// Set [Config].Backend to [BackendFake] to use an in-memory backend that runs nothing.
package lib
