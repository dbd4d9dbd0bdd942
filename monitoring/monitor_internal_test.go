package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ciuse/soc"
	"github.com/sarchlab/ciuse/uart"
)

type countingLocker struct {
	locks, unlocks int
}

func (l *countingLocker) Lock()   { l.locks++ }
func (l *countingLocker) Unlock() { l.unlocks++ }

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		machine *soc.Machine
		locker  *countingLocker
		router  http.Handler
	)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		machine = soc.MakeBuilder().Build("CIU")
		locker = &countingLocker{}
		m = NewMonitor().WithLocker(locker).WithBus(machine)
		for _, c := range machine.Components() {
			m.RegisterComponent(c)
		}
		router = m.Router()
	})

	It("should list components", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/list_components", nil))

		var names []string
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(ContainElements("CIU.NVM", "CIU.UART", "CIU.Sysreg"))
	})

	It("should serialize a component under the lock", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/component/CIU.Sysreg", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).ToNot(BeZero())
		Expect(locker.locks).To(Equal(1))
		Expect(locker.unlocks).To(Equal(1))
	})

	It("should answer 404 for unknown components", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/component/Nope", nil))

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/field/notjson", nil))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should read the bus", func() {
		machine.Write(soc.SRAMBase, 0xCAFEF00D, 4)

		rec := serve(httptest.NewRequest(http.MethodGet,
			"/api/bus/read?addr=0x20000000&size=4", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		rsp := busAccessRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(Equal(busAccessRsp{
			Addr: "0x20000000", Size: 4, Value: "0xcafef00d",
		}))
		Expect(locker.locks).To(Equal(1))
	})

	It("should write the bus", func() {
		form := url.Values{
			"addr":  {"0x40005018"},
			"value": {"65"},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/bus/write",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := serve(req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(machine.UART().Status()).To(Equal(uart.StatusTx))
	})

	It("should reject bad addresses", func() {
		rec := serve(httptest.NewRequest(http.MethodGet,
			"/api/bus/read?addr=zz", nil))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(locker.locks).To(BeZero())
	})

	It("should refuse bus access when no bus is set", func() {
		router = NewMonitor().Router()

		rec := serve(httptest.NewRequest(http.MethodGet,
			"/api/bus/read?addr=0", nil))

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should report resources", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/resource", nil))

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).ToNot(BeZero())
	})

	It("should serve the page", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})

var _ = Describe("WithPortNumber", func() {
	It("should refuse privileged ports", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(BeZero())
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})
})
