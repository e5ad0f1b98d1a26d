/*
Package task implements a small cooperative scheduler for non-blocking state machines.

A Machine is driven by repeated calls to Multiplex on the single worker goroutine
of an Engine. Each call runs one step and must not block. At the end of a step the
machine decides what happens next:

  - return without a decision: the task is queued again (yield)
  - Task.Suspend: the task sleeps until someone calls Task.Resume
  - Task.Finish: the task is done
  - Task.Abort: the task is aborted and its AbortHook runs

Resume may be called from any goroutine at any time. A resume that arrives while
the step is still running is remembered, so a task that suspends right after a
wakeup was sent is queued again instead of sleeping forever.

Usage Example:

	engine := task.NewEngine("main")
	defer engine.Close()

	t := engine.NewTask(myMachine, stateStart)
	if err := engine.Run(t); err != nil {
		return err
	}
	err := t.Wait(ctx)
*/
package task
