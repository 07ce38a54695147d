package testutil

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/eureka"
)

// Registry operations recorded by FakeRegistry.
const (
	OpRegister      = "register"
	OpDeregister    = "deregister"
	OpHeartbeat     = "heartbeat"
	OpStatus        = "status"
	OpMetadata      = "metadata"
	OpFetchAll      = "fetch_all"
	OpFetchApp      = "fetch_app"
	OpFetchInstance = "fetch_instance"
	OpFetchVIP      = "fetch_vip"
	OpFetchSVIP     = "fetch_svip"
)

// RegistryCall 一次请求的记录
type RegistryCall struct {
	Op       string
	Method   string
	RawPath  string // 转义后的路径，用于断言编码
	App      string // 解码后的路径段
	ID       string
	Query    url.Values
	RawQuery string
}

// FakeRegistry 内存版注册中心，实现注册中心 REST 协议的子集
//
//	reg := testutil.NewFakeRegistry(t)
//	cfg := eureka.DefaultConfig()
//	reg.Apply(&cfg)
//	reg.FailNext(testutil.OpHeartbeat, http.StatusNotFound)
type FakeRegistry struct {
	Server *httptest.Server

	mu       sync.Mutex
	apps     map[string][]*eureka.Instance // 大写 app 名 -> 实例（注册顺序）
	appOrder []string
	calls    []RegistryCall
	failures map[string][]int
	down     bool
}

// NewFakeRegistry starts the server; it is closed by t.Cleanup.
func NewFakeRegistry(t testing.TB) *FakeRegistry {
	f := &FakeRegistry{
		apps:     make(map[string][]*eureka.Instance),
		failures: make(map[string][]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL returns {server}/eureka.
func (f *FakeRegistry) BaseURL() string {
	return f.Server.URL + "/eureka"
}

// Apply points cfg at the fake registry.
func (f *FakeRegistry) Apply(cfg *eureka.Config) {
	u, _ := url.Parse(f.Server.URL)
	host, port, _ := net.SplitHostPort(u.Host)
	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	cfg.ServicePath = "/eureka"
	cfg.SSL = false
}

// Put stores inst as if it had registered.
func (f *FakeRegistry) Put(inst eureka.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(&inst)
}

// Forget drops an instance, so that its next heartbeat gets 404.
func (f *FakeRegistry) Forget(app, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove(app, id)
}

// FailNext makes the next len(statuses) requests of op answer with the given statuses.
func (f *FakeRegistry) FailNext(op string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], statuses...)
}

// SetDown makes every request answer 503 while down is true.
func (f *FakeRegistry) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Instances returns copies of the stored instances of app.
func (f *FakeRegistry) Instances(app string) []eureka.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eureka.Instance
	for _, inst := range f.apps[strings.ToUpper(app)] {
		out = append(out, inst.Clone())
	}
	return out
}

// Calls returns the recorded calls of op, or all calls when op is empty.
func (f *FakeRegistry) Calls(op string) []RegistryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RegistryCall
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// CallCount counts the recorded calls of op.
func (f *FakeRegistry) CallCount(op string) int {
	return len(f.Calls(op))
}

// Ops returns the recorded op sequence.
func (f *FakeRegistry) Ops() []string {
	calls := f.Calls("")
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// WaitForCalls polls until op was called at least n times.
func (f *FakeRegistry) WaitForCalls(op string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.CallCount(op) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return f.CallCount(op) >= n
}

func (f *FakeRegistry) put(inst *eureka.Instance) {
	key := strings.ToUpper(inst.App)
	inst.App = key
	list, ok := f.apps[key]
	if !ok {
		f.appOrder = append(f.appOrder, key)
	}
	for i, existing := range list {
		if existing.ID() == inst.ID() {
			list[i] = inst
			return
		}
	}
	f.apps[key] = append(list, inst)
}

func (f *FakeRegistry) find(app, id string) *eureka.Instance {
	for _, inst := range f.apps[strings.ToUpper(app)] {
		if inst.ID() == id {
			return inst
		}
	}
	return nil
}

func (f *FakeRegistry) remove(app, id string) bool {
	key := strings.ToUpper(app)
	list := f.apps[key]
	for i, inst := range list {
		if inst.ID() == id {
			f.apps[key] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// route 把请求映射为操作；路径段在这里解码
func route(method string, segs []string) string {
	switch {
	case len(segs) == 1 && segs[0] == "apps" && method == http.MethodGet:
		return OpFetchAll
	case len(segs) == 2 && segs[0] == "apps" && method == http.MethodPost:
		return OpRegister
	case len(segs) == 2 && segs[0] == "apps" && method == http.MethodGet:
		return OpFetchApp
	case len(segs) == 3 && segs[0] == "apps" && method == http.MethodDelete:
		return OpDeregister
	case len(segs) == 3 && segs[0] == "apps" && method == http.MethodPut:
		return OpHeartbeat
	case len(segs) == 3 && segs[0] == "apps" && method == http.MethodGet:
		return OpFetchInstance
	case len(segs) == 4 && segs[0] == "apps" && segs[3] == "status" && method == http.MethodPut:
		return OpStatus
	case len(segs) == 4 && segs[0] == "apps" && segs[3] == "metadata" && method == http.MethodPut:
		return OpMetadata
	case len(segs) == 2 && segs[0] == "vips" && method == http.MethodGet:
		return OpFetchVIP
	case len(segs) == 2 && segs[0] == "svips" && method == http.MethodGet:
		return OpFetchSVIP
	}
	return ""
}

func (f *FakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.EscapedPath()
	rest := strings.TrimPrefix(rawPath, "/eureka/")
	var segs []string
	for _, s := range strings.Split(rest, "/") {
		decoded, err := url.PathUnescape(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		segs = append(segs, decoded)
	}

	op := route(r.Method, segs)
	call := RegistryCall{Op: op, Method: r.Method, RawPath: rawPath, Query: r.URL.Query(), RawQuery: r.URL.RawQuery}
	if len(segs) > 1 {
		call.App = segs[1]
	}
	if len(segs) > 2 {
		call.ID = segs[2]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)

	if op == "" {
		http.NotFound(w, r)
		return
	}
	if f.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		w.WriteHeader(queued[0])
		return
	}

	switch op {
	case OpRegister:
		f.handleRegister(w, r, call.App)
	case OpDeregister:
		if !f.remove(call.App, call.ID) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case OpHeartbeat:
		inst := f.find(call.App, call.ID)
		if inst == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if inst.LeaseInfo != nil {
			inst.LeaseInfo.LastRenewalTimestamp = time.Now().UnixMilli()
		}
		w.WriteHeader(http.StatusOK)
	case OpStatus:
		inst := f.find(call.App, call.ID)
		if inst == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status, err := eureka.ParseStatus(call.Query.Get("value"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inst.Status = status
		w.WriteHeader(http.StatusOK)
	case OpMetadata:
		inst := f.find(call.App, call.ID)
		if inst == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if inst.Metadata == nil {
			inst.Metadata = eureka.Metadata{}
		}
		for k := range call.Query {
			inst.Metadata[k] = call.Query.Get(k)
		}
		w.WriteHeader(http.StatusOK)
	case OpFetchAll:
		f.writeApplications(w, r, func(*eureka.Instance) bool { return true })
	case OpFetchVIP:
		f.writeApplications(w, r, func(i *eureka.Instance) bool { return i.VIPAddress == call.App })
	case OpFetchSVIP:
		f.writeApplications(w, r, func(i *eureka.Instance) bool { return i.SecureVIPAddress == call.App })
	case OpFetchApp:
		list := f.apps[strings.ToUpper(call.App)]
		if len(list) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		app := eureka.Application{Name: strings.ToUpper(call.App)}
		for _, inst := range list {
			app.Instances = append(app.Instances, *inst)
		}
		writeDoc(w, r, "application", &app)
	case OpFetchInstance:
		inst := f.find(call.App, call.ID)
		if inst == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeDoc(w, r, "instance", inst)
	}
}

func (f *FakeRegistry) handleRegister(w http.ResponseWriter, r *http.Request, app string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var inst eureka.Instance
	if isJSON(r.Header.Get("Content-Type")) {
		var doc struct {
			Instance *eureka.Instance `json:"instance"`
		}
		err = json.Unmarshal(body, &doc)
		if err == nil && doc.Instance == nil {
			err = io.ErrUnexpectedEOF
		}
		if doc.Instance != nil {
			inst = *doc.Instance
		}
	} else {
		err = xml.Unmarshal(body, &inst)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inst.App = app
	if inst.LeaseInfo == nil {
		inst.LeaseInfo = &eureka.LeaseInfo{DurationInSecs: 90}
	}
	inst.LeaseInfo.RegistrationTimestamp = time.Now().UnixMilli()
	f.put(&inst)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeRegistry) writeApplications(w http.ResponseWriter, r *http.Request, keep func(*eureka.Instance) bool) {
	doc := eureka.Applications{VersionsDelta: "1"}
	counts := map[string]int{}
	for _, name := range f.appOrder {
		app := eureka.Application{Name: name}
		for _, inst := range f.apps[name] {
			if keep(inst) {
				app.Instances = append(app.Instances, *inst)
				counts[string(inst.Status)]++
			}
		}
		if len(app.Instances) > 0 {
			doc.Applications = append(doc.Applications, app)
		}
	}
	doc.AppsHashcode = hashcode(counts)
	writeDoc(w, r, "applications", &doc)
}

// hashcode 与注册中心一致的格式，如 "DOWN_1_UP_2_"
func hashcode(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k + "_" + strconv.Itoa(counts[k]) + "_")
	}
	return sb.String()
}

func writeDoc(w http.ResponseWriter, r *http.Request, root string, doc interface{}) {
	if isJSON(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{root: doc})
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_ = xml.NewEncoder(w).Encode(doc)
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}
