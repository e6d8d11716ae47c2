// Package process runs an external program asynchronously and bounds how many
// instances run at once.
//
// The package offers two levels of abstraction:
//
// Process wraps os/exec for a single invocation:
//   - State machine: not_launched -> launched -> finished | stopped, or not_launched -> error
//   - Concurrent stdout/stderr draining on a small bounded set of goroutines
//   - Ordered line callbacks and a finish callback that fires exactly once,
//     after the last line callback
//   - Standard input writes and forced termination of the whole process group
//
// Pool manages a FIFO collection of processes:
//   - At most Limit processes launched at any instant
//   - Running/executed/failed counters
//   - Wait, Stop, ClearPool and StopAndClear over the whole collection
//
// The executable is configured once per program with Initialize:
//
//	if err := process.Initialize("rclone"); err != nil {
//	    return err
//	}
//	process.AddGlobalOption("--config", "rclone.conf")
//
//	pool, err := process.NewPool(&process.PoolOptions{Limit: 2})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	proc := process.New("listremotes", "--long")
//	proc.EveryLine(func(line string) { fmt.Println(line) })
//	proc.Finished(func(code int) { log.Printf("exit %d", code) })
//	_ = pool.AddProcess(proc)
//	pool.Wait()
package process
