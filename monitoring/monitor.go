// Package monitoring serves the state of a running machine over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/ciuse/hooking"
	"github.com/sarchlab/ciuse/monitoring/web"
)

// A BusAccessor performs accesses on behalf of the monitor.
type BusAccessor interface {
	Read(addr uint64, size int) uint64
	Write(addr uint64, value uint64, size int)
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Monitor turns a machine into a server so that its components can be
// inspected and its bus accessed while it runs.
type Monitor struct {
	components []hooking.Named
	portNumber int
	locker     sync.Locker
	bus        BusAccessor

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{locker: noLock{}}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLocker sets the lock held while the monitor touches components.
func (m *Monitor) WithLocker(l sync.Locker) *Monitor {
	m.locker = l
	return m
}

// WithBus enables the bus access routes.
func (m *Monitor) WithBus(b BusAccessor) *Monitor {
	m.bus = b
	return m
}

// RegisterComponent register a component to be monitored.
func (m *Monitor) RegisterComponent(c hooking.Named) {
	m.components = append(m.components, c)
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/bus/read", m.busRead).Methods(http.MethodGet)
	r.HandleFunc("/api/bus/write", m.busWrite).Methods(http.MethodPost)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring machine with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()

	return url
}

// Close stops the server.
func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.locker.Lock()
	defer m.locker.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields := strings.Split(req.FieldName, ".")

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	m.locker.Lock()
	defer m.locker.Unlock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type busAccessRsp struct {
	Addr  string `json:"addr"`
	Size  int    `json:"size"`
	Value string `json:"value"`
}

func (m *Monitor) parseAccess(
	w http.ResponseWriter,
	r *http.Request,
	withValue bool,
) (addr, value uint64, size int, ok bool) {
	if m.bus == nil {
		http.Error(w, "bus access is not enabled", http.StatusNotFound)
		return 0, 0, 0, false
	}

	var err error

	addr, err = strconv.ParseUint(r.FormValue("addr"), 0, 64)
	if err != nil {
		http.Error(w, "invalid addr: "+err.Error(), http.StatusBadRequest)
		return 0, 0, 0, false
	}

	size = 4
	if s := r.FormValue("size"); s != "" {
		size, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid size: "+err.Error(), http.StatusBadRequest)
			return 0, 0, 0, false
		}
	}

	if withValue {
		value, err = strconv.ParseUint(r.FormValue("value"), 0, 64)
		if err != nil {
			http.Error(w, "invalid value: "+err.Error(), http.StatusBadRequest)
			return 0, 0, 0, false
		}
	}

	return addr, value, size, true
}

func (m *Monitor) busRead(w http.ResponseWriter, r *http.Request) {
	addr, _, size, ok := m.parseAccess(w, r, false)
	if !ok {
		return
	}

	m.locker.Lock()
	value := m.bus.Read(addr, size)
	m.locker.Unlock()

	writeJSON(w, busAccessRsp{
		Addr:  fmt.Sprintf("0x%x", addr),
		Size:  size,
		Value: fmt.Sprintf("0x%x", value),
	})
}

func (m *Monitor) busWrite(w http.ResponseWriter, r *http.Request) {
	addr, value, size, ok := m.parseAccess(w, r, true)
	if !ok {
		return
	}

	m.locker.Lock()
	m.bus.Write(addr, value, size)
	m.locker.Unlock()

	writeJSON(w, busAccessRsp{
		Addr:  fmt.Sprintf("0x%x", addr),
		Size:  size,
		Value: fmt.Sprintf("0x%x", value),
	})
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) hooking.Named {
	var component hooking.Named
	for _, c := range m.components {
		if c.Name() == name {
			component = c
		}
	}

	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Component not found"))
		dieOnErr(err)
	}

	return component
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
