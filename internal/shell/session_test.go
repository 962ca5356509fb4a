package shell

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	requireSh(t)
	if opts.Command == nil {
		opts.Command = []string{"sh"}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExecEcho(t *testing.T) {
	s := newTestSession(t, Options{})

	res := s.NewJob().Add("echo hello").Exec()
	assert.Equal(t, []string{"hello"}, res.Out())
	assert.Equal(t, 0, res.Code())
	assert.True(t, res.IsSuccess())
	assert.True(t, s.IsAlive())
	assert.NotEqual(t, StatusUnknown, s.Status())
}

func TestExecExitCode(t *testing.T) {
	s := newTestSession(t, Options{})

	// exit in a subshell so the session survives
	res := s.NewJob().Add("(exit 7)").Exec()
	assert.Equal(t, 7, res.Code())
	assert.False(t, res.IsSuccess())

	res = s.NewJob().Add("echo still here").Exec()
	assert.Equal(t, []string{"still here"}, res.Out())
}

func TestExecExitTerminatesShell(t *testing.T) {
	s := newTestSession(t, Options{})

	res := s.NewJob().Add("echo bye", "exit 7").Exec()
	assert.Equal(t, 7, res.Code())
	assert.False(t, res.IsSuccess())
	assert.False(t, res.Died())
	assert.Equal(t, []string{"bye"}, res.Out())

	require.Eventually(t, func() bool { return !s.IsAlive() }, 2*time.Second, 10*time.Millisecond)
	res = s.NewJob().Add("echo too late").Exec()
	assert.Equal(t, NotExecuted, res.Code())
}

func TestExecOnKilledSession(t *testing.T) {
	s := newTestSession(t, Options{})

	require.NoError(t, syscall.Kill(s.Pid(), syscall.SIGKILL))
	<-s.proc.Exited()

	res := s.NewJob().Add("echo hello").Exec()
	assert.Equal(t, NotExecuted, res.Code())
	assert.True(t, res.Died())
	assert.Empty(t, res.Out())
	assert.False(t, s.IsAlive())
	assert.Equal(t, StatusUnknown, s.Status())
}

func TestConcurrentEnqueueKeepsOutputsApart(t *testing.T) {
	s := newTestSession(t, Options{})

	const n = 50
	futures := make([]*Future, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futures[i] = s.NewJob().Add("echo " + strconv.Itoa(i)).Enqueue()
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, fut := range futures {
		res, err := fut.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{strconv.Itoa(i)}, res.Out(), "job %d", i)
		assert.Equal(t, 0, res.Code())
	}
}

func TestSubmitTaskRunsInFIFOOrder(t *testing.T) {
	s := newTestSession(t, Options{})

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := range 20 {
		wg.Add(1)
		s.SubmitTask(NewTask(func(Streams) error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, wg.Done))
	}
	wg.Wait()

	for i, got := range order {
		assert.Equal(t, i, got)
	}
	assert.Len(t, order, 20)
}

func TestExecTaskWaitsForEarlierWorkOnly(t *testing.T) {
	s := newTestSession(t, Options{})

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Task {
		return NewTask(func(Streams) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}, nil)
	}

	gate := make(chan struct{})
	started := make(chan struct{})
	s.SubmitTask(NewTask(func(Streams) error {
		close(started)
		<-gate
		return nil
	}, nil))
	<-started
	s.SubmitTask(record("queued-before"))

	done := make(chan struct{})
	go func() {
		s.ExecTask(record("blocking"))
		close(done)
	}()
	// queued-before plus the rendezvous entry
	require.Eventually(t, func() bool { return s.QueueLen() == 2 }, 2*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	s.SubmitTask(NewTask(func(Streams) error {
		defer wg.Done()
		return record("queued-after").Run(Streams{})
	}, wg.Done))

	close(gate)
	<-done
	wg.Wait()

	assert.Equal(t, []string{"queued-before", "blocking", "queued-after"}, order)
}

func TestCreationWithMissingBinary(t *testing.T) {
	start := time.Now()
	_, err := New(context.Background(), Options{Command: []string{"/nonexistent/bin/shell"}, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrCreationIO)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCreationNotAShell(t *testing.T) {
	requireSh(t)
	_, err := New(context.Background(), Options{
		Command: []string{"sh", "-c", "read x; echo nope; sleep 5"},
		Timeout: 5 * time.Second,
	})
	assert.ErrorIs(t, err, ErrNotAShell)
}

func TestCreationTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	_, err := New(context.Background(), Options{Command: []string{"sleep", "10"}, Timeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, ErrCreationTimeout)
}

func TestCreationProcessExitsEarly(t *testing.T) {
	requireSh(t)
	_, err := New(context.Background(), Options{Command: []string{"sh", "-c", "exit 0"}, Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, ErrCreationIO)
}

func TestSharedDestinationMergesStreams(t *testing.T) {
	s := newTestSession(t, Options{})

	var merged []string
	cmds := make([]string, 0, 40)
	for i := range 20 {
		cmds = append(cmds, "echo out"+strconv.Itoa(i), "echo err"+strconv.Itoa(i)+" >&2")
	}
	res := s.NewJob().Add(cmds...).ToStreams(&merged, &merged).Exec()
	require.Equal(t, 0, res.Code())

	assert.Len(t, merged, 40)
	for i := range 20 {
		assert.Contains(t, merged, "out"+strconv.Itoa(i))
		assert.Contains(t, merged, "err"+strconv.Itoa(i))
	}
}

func TestSeparateDestinations(t *testing.T) {
	s := newTestSession(t, Options{})

	var out, errs []string
	res := s.NewJob().Add("echo to-out", "echo to-err >&2").ToStreams(&out, &errs).Exec()
	assert.Equal(t, []string{"to-out"}, out)
	assert.Equal(t, []string{"to-err"}, errs)
	assert.Equal(t, out, res.Out())
	assert.Equal(t, errs, res.Err())
}

func TestRedirectStderrMirrorsIntoStdout(t *testing.T) {
	s := newTestSession(t, Options{RedirectStderr: true})

	var out []string
	s.NewJob().Add("echo a", "echo b >&2").To(&out).Exec()
	assert.ElementsMatch(t, []string{"a", "b"}, out)

	var errs []string
	out = nil
	s.NewJob().Add("echo a", "echo b >&2").ToStreams(&out, &errs).Exec()
	assert.Equal(t, []string{"a"}, out)
	assert.Equal(t, []string{"b"}, errs)
}

func TestReaderSource(t *testing.T) {
	s := newTestSession(t, Options{})

	src := Reader(strings.NewReader("echo from-stream\necho second"))
	res := s.NewJob().AddSource(src).Exec()
	assert.Equal(t, []string{"from-stream", "second"}, res.Out())
	assert.True(t, src.Consumed())
}

func TestOutputWithoutTrailingNewline(t *testing.T) {
	s := newTestSession(t, Options{})

	res := s.NewJob().Add("printf no-newline").Exec()
	assert.Equal(t, []string{"no-newline"}, res.Out())
	assert.Equal(t, 0, res.Code())
}

func TestStrayOutputIsDiscarded(t *testing.T) {
	s := newTestSession(t, Options{})

	s.ExecTask(NewTask(func(st Streams) error {
		_, err := st.Stdin.Write([]byte("echo stray\n"))
		return err
	}, nil))
	time.Sleep(100 * time.Millisecond)

	res := s.NewJob().Add("echo clean").Exec()
	assert.Equal(t, []string{"clean"}, res.Out())
}

func TestSubmitCallback(t *testing.T) {
	s := newTestSession(t, Options{})

	got := make(chan Result, 1)
	s.NewJob().Add("echo cb").Submit(Go, func(r Result) { got <- r })

	select {
	case res := <-got:
		assert.Equal(t, []string{"cb"}, res.Out())
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestWaitAndClose(t *testing.T) {
	s := newTestSession(t, Options{})

	fut := s.NewJob().Add("sleep 0.2", "echo done").Enqueue()
	assert.True(t, s.WaitAndClose(5*time.Second))

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, res.Out())
	assert.False(t, s.IsAlive())

	res = s.NewJob().Add("echo rejected").Exec()
	assert.Equal(t, NotExecuted, res.Code())
}

func TestWaitAndCloseTimesOut(t *testing.T) {
	s := newTestSession(t, Options{})

	fut := s.NewJob().Add("sleep 1", "echo late").Enqueue()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, s.WaitAndClose(50*time.Millisecond))
	assert.True(t, s.IsAlive())

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, res.Out())
}

func TestCloseFailsQueuedWork(t *testing.T) {
	s := newTestSession(t, Options{})

	gate := make(chan struct{})
	s.SubmitTask(NewTask(func(Streams) error {
		<-gate
		return nil
	}, nil))
	fut := s.NewJob().Add("echo never").Enqueue()

	require.NoError(t, s.Close())
	close(gate)

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NotExecuted, res.Code())
	assert.True(t, res.Died())
}

func TestFastCmd(t *testing.T) {
	s := newTestSession(t, Options{})

	assert.Equal(t, "b", FastCmd(s, "echo a", "echo b"))
	assert.Equal(t, "", FastCmd(s, "true"))
	assert.True(t, FastCmdResult(s, "true"))
	assert.False(t, FastCmdResult(s, "false"))
}

func TestSessionCloseDoesNotLeak(t *testing.T) {
	requireSh(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New(context.Background(), Options{Command: []string{"sh"}, Timeout: 5 * time.Second})
	require.NoError(t, err)
	res := s.NewJob().Add("echo x").Exec()
	require.Equal(t, []string{"x"}, res.Out())

	require.NoError(t, s.Close())
	<-s.proc.Exited()
}

func TestJobTasksGetFreshTokens(t *testing.T) {
	s := newTestSession(t, Options{})
	job := s.NewJob().Add("true")

	seen := make(map[string]bool)
	for range 20 {
		tok := job.task(func(Result) {}).token
		require.Len(t, tok, 32)
		require.False(t, seen[tok], "token %s reused", tok)
		seen[tok] = true
	}
}

func TestEarlierTokenIsPlainOutput(t *testing.T) {
	s := newTestSession(t, Options{})

	var first Result
	prev := s.NewJob().Add("echo one").task(func(r Result) { first = r })
	s.ExecTask(prev)
	require.Equal(t, []string{"one"}, first.Out())

	res := s.NewJob().Add("echo "+prev.token, "echo "+prev.token+" >&2", "echo after").Exec()
	assert.Equal(t, []string{prev.token, "after"}, res.Out())
	assert.Equal(t, []string{prev.token}, res.Err())
	assert.Equal(t, 0, res.Code())
}

func TestRootHandshakeRestoresDir(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	cdLog := filepath.Join(t.TempDir(), "cd.log")

	// Reports uid 0 and logs every cd before running it.
	fakeSu := "id() { echo 'uid=0(root) gid=0(root)'; }\n" +
		"cd() { printf '%s\\n' \"$1\" >> " + EscapedString(cdLog) + "; command cd \"$1\"; }\n" +
		"while IFS= read -r line; do eval \"$line\"; done\n"

	s := newTestSession(t, Options{Command: []string{"sh", "-c", fakeSu}, Dir: dir})
	assert.Equal(t, StatusRoot, s.Status())
	assert.True(t, s.IsRoot())

	res := s.NewJob().Add("pwd").Exec()
	require.Equal(t, []string{dir}, res.Out())

	logged, err := os.ReadFile(cdLog)
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", string(logged))
}

func TestNonRootHandshakeLeavesDir(t *testing.T) {
	dir := t.TempDir()
	s := newTestSession(t, Options{Dir: dir})
	if s.IsRoot() {
		t.Skip("running as root")
	}

	res := s.NewJob().Add("pwd").Exec()
	require.Len(t, res.Out(), 1)
	assert.NotEqual(t, dir, res.Out()[0])
}
