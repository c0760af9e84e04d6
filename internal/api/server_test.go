package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/xload/internal/device"
	"github.com/samcharles93/xload/internal/fpgamgr"
	"github.com/samcharles93/xload/pkg/axlf"
	"github.com/samcharles93/xload/pkg/bitstream"
)

func testContainer(t *testing.T, id uint64) []byte {
	t.Helper()
	w := axlf.NewWriter(axlf.Header{
		UniqueID:     id,
		PlatformVBNV: "xilinx_zcu102_base_202010_1",
		UUID:         uuid.MustParse("5e4d1b3f-8a6c-4b1e-9f2d-7c3a9b0e1f42"),
	})
	if err := w.AddSection(axlf.SectionPDI, "pdi", []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("add pdi: %v", err)
	}
	if err := w.AddTable(axlf.SectionIPLayout, &axlf.IPLayout{Entries: []axlf.IPData{
		{Type: axlf.IPKernel, BaseAddress: 0xA0000000, Name: "vadd:vadd_1"},
		{Type: axlf.IPKernel, BaseAddress: 0xA0010000, Name: "vadd:vadd_2"},
	}}); err != nil {
		t.Fatalf("add ip layout: %v", err)
	}
	if err := w.AddTable(axlf.SectionMemTopology, &axlf.MemTopology{Banks: []axlf.MemData{
		{Type: axlf.MemDDR4, Used: true, SizeKB: 4, BaseAddress: 0x800000000, Tag: "bank0"},
	}}); err != nil {
		t.Fatalf("add mem topology: %v", err)
	}
	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return b
}

func newTestEcho(t *testing.T) (*echo.Echo, *fpgamgr.Recorder) {
	t.Helper()
	rec := &fpgamgr.Recorder{}
	dev := device.New(device.Options{Loader: rec})
	e := echo.New()
	NewServer(dev, WithMaxBodyBytes(1<<20)).Register(e)
	return e, rec
}

func do(t *testing.T, e *echo.Echo, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEOctetStream)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestLoadAndQuery(t *testing.T) {
	t.Parallel()

	e, recorder := newTestEcho(t)
	rec := do(t, e, http.MethodPost, "/v1/xclbin?image=1", testContainer(t, 77))
	if rec.Code != http.StatusOK {
		t.Fatalf("load status %d body=%s", rec.Code, rec.Body.String())
	}
	res := decode[device.LoadResult](t, rec)
	if res.UniqueID != 77 || res.ApertureCount != 2 || !res.ImageLoaded {
		t.Fatalf("load result %+v", res)
	}
	if len(recorder.Records()) != 1 {
		t.Fatalf("image not handed to loader")
	}

	rec = do(t, e, http.MethodGet, "/v1/apertures", nil)
	list := decode[ListResponse[ApertureResponse]](t, rec)
	if len(list.Data) != 2 || list.Data[1].Addr != 0xA0010000 || list.Data[1].Source != "ip_layout" {
		t.Fatalf("apertures %+v", list.Data)
	}

	rec = do(t, e, http.MethodGet, "/v1/apertures/lookup?addr=0xA0010040", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[ApertureResponse](t, rec); got.Index != 1 {
		t.Fatalf("lookup got %+v", got)
	}

	rec = do(t, e, http.MethodGet, "/v1/compute-units", nil)
	cus := decode[ListResponse[device.ComputeUnit]](t, rec)
	if len(cus.Data) != 2 || cus.Data[0].Name != "vadd:vadd_1" {
		t.Fatalf("compute units %+v", cus.Data)
	}

	rec = do(t, e, http.MethodGet, "/v1/device", nil)
	snap := decode[map[string]any](t, rec)
	if snap["state"] != "committed" || snap["committed"] != true {
		t.Fatalf("device %v", snap)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	if rec := do(t, e, http.MethodGet, "/v1/apertures/lookup", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing addr: status %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/v1/apertures/lookup?addr=zz", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad addr: status %d", rec.Code)
	}
	rec := do(t, e, http.MethodGet, "/v1/apertures/lookup?addr=4096", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("miss: status %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Error.Type != "not_found_error" {
		t.Fatalf("error body %+v", got)
	}
}

func TestLoadErrorMapping(t *testing.T) {
	t.Parallel()

	bad := testContainer(t, 1)
	bad[0] = 'X'

	short := testContainer(t, 2)
	// Declare the first section larger than the container.
	off := axlf.SectionTableOffset + 32
	for i := range 8 {
		short[off+i] = 0xff
	}

	tests := []struct {
		name   string
		body   []byte
		status int
		code   string
	}{
		{"magic", bad, http.StatusBadRequest, "magic_mismatch"},
		{"out of bounds", short, http.StatusBadRequest, "section_out_of_bounds"},
		{"empty", nil, http.StatusBadRequest, ""},
		{"too large", make([]byte, 1<<20+1), http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newTestEcho(t)
			rec := do(t, e, http.MethodPost, "/v1/xclbin?image=true", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec); got.Error.Code != tc.code {
				t.Fatalf("code %q want %q", got.Error.Code, tc.code)
			}
		})
	}
}

func TestMemoryEndpoints(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	if rec := do(t, e, http.MethodPost, "/v1/xclbin", testContainer(t, 5)); rec.Code != http.StatusOK {
		t.Fatalf("load status %d", rec.Code)
	}

	rec := doJSON(t, e, http.MethodPost, "/v1/memory/reserve", `{"flags":0,"size":2048}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reserve status %d body=%s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/memory/reserve", `{"flags":0,"size":4096}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("over-reserve status %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/memory/reserve", `{"flags":9,"size":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid bank status %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/memory/reserve", `{"flag":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/v1/memory", nil)
	banks := decode[ListResponse[device.Bank]](t, rec)
	if len(banks.Data) != 1 || banks.Data[0].Reserved != 2048 {
		t.Fatalf("banks %+v", banks.Data)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/memory/release", `{"bank":0,"size":2048}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("release status %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestBitstreamEndpoint(t *testing.T) {
	t.Parallel()

	e, recorder := newTestEcho(t)
	hdr, err := bitstream.Encode(bitstream.Header{
		DesignName:      "top",
		PartName:        "xc7z020clg400-1",
		Date:            "2021/01/01",
		Time:            "00:00:00",
		BitstreamLength: 4,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec := do(t, e, http.MethodPost, "/v1/bitstream", append(hdr, 1, 2, 3, 4))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[BitstreamResponse](t, rec); got.PartName != "xc7z020clg400-1" || got.BitstreamLength != 4 {
		t.Fatalf("response %+v", got)
	}
	if recs := recorder.Records(); len(recs) != 1 || recs[0].Size != 4 {
		t.Fatalf("records %+v", recs)
	}

	rec = do(t, e, http.MethodPost, "/v1/bitstream", []byte{0, 1, 2})
	if got := decode[ErrorResponse](t, rec); rec.Code != http.StatusBadRequest || got.Error.Code != "invalid_file_header" {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestImageLoadFailureIsServerError(t *testing.T) {
	t.Parallel()

	rec := &fpgamgr.Recorder{Err: context.DeadlineExceeded}
	dev := device.New(device.Options{Loader: rec})
	e := echo.New()
	NewServer(dev).Register(e)

	res := do(t, e, http.MethodPost, "/v1/xclbin?image=1", testContainer(t, 3))
	// Image failures win over the wrapped cause.
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("status %d body=%s", res.Code, res.Body.String())
	}
	if got := decode[ErrorResponse](t, res); got.Error.Code != "image_load_failed" {
		t.Fatalf("code %q", got.Error.Code)
	}
}
