package eureka

import (
	"context"
	"fmt"
	"sync"
)

// fakeWire is a scripted WireClient. Each queue is consumed one error per
// call; an empty queue means success.
type fakeWire struct {
	mu sync.Mutex

	calls []string

	registerErrs   []error
	heartbeatErrs  []error
	statusErrs     []error
	deregisterErr  error
	registerAlways error // when set, every register fails

	// 非 nil 时 Register 先通知 registerEntered，再阻塞到 registerRelease 关闭
	registerEntered chan struct{}
	registerRelease chan struct{}

	fetch func(call int) ([]Instance, error)
	fetchCalls int
}

func (f *fakeWire) record(call string) {
	f.calls = append(f.calls, call)
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeWire) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeWire) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeWire) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeWire) Register(_ context.Context, app string, _ *Instance) error {
	f.mu.Lock()
	f.record("register")
	err := f.registerAlways
	if err == nil {
		err = pop(&f.registerErrs)
	}
	entered, release := f.registerEntered, f.registerRelease
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeWire) Deregister(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("deregister")
	return f.deregisterErr
}

func (f *fakeWire) Heartbeat(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("heartbeat")
	return pop(&f.heartbeatErrs)
}

func (f *fakeWire) FetchAll(_ context.Context) ([]Instance, error) {
	f.mu.Lock()
	f.record("fetch")
	f.fetchCalls++
	n := f.fetchCalls
	fetch := f.fetch
	f.mu.Unlock()
	if fetch == nil {
		return nil, nil
	}
	return fetch(n)
}

func (f *fakeWire) FetchByApp(_ context.Context, _ string) ([]Instance, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeWire) FetchByInstance(_ context.Context, _, _ string) (*Instance, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeWire) FetchByVIP(_ context.Context, _ string) ([]Instance, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeWire) FetchBySecureVIP(_ context.Context, _ string) ([]Instance, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeWire) SetStatus(_ context.Context, _, _ string, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("status:" + string(status))
	return pop(&f.statusErrs)
}

func (f *fakeWire) SetMetadata(_ context.Context, _, _, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("metadata:" + key + "=" + value)
	return nil
}

func testInstance(app, host, ip string, port int, status Status) Instance {
	return Instance{
		HostName:       host,
		App:            app,
		IPAddr:         ip,
		Status:         status,
		Port:           NewPort(port),
		SecurePort:     Port{Value: 443},
		DataCenterInfo: MyOwnDataCenter(),
	}
}
