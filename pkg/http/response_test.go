package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	TrainID string  `json:"train_id" validate:"required,max=8"`
	Speed   float64 `json:"speed_kmh" default:"0" validate:"gte=0"`
	Status  string  `json:"status" default:"On Time"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"train_id":"T-1"}`)
	var req sampleRequest
	if errs := ReadAndValidateRequest(c, &req); errs != nil {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if req.Status != "On Time" {
		t.Fatalf("default not applied: %+v", req)
	}
}

func TestReadAndValidateRequestUsesJSONNames(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"speed_kmh":-4}`)
	var req sampleRequest
	errs, ok := ReadAndValidateRequest(c, &req).([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("expected two validation errors, got %+v", errs)
	}
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	if fields["train_id"] != "ERR_REQUIRED" || fields["speed_kmh"] != "ERR_GTE" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestAppErrorResponseStatus(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	if err := AppErrorResponse(c, ConflictErrorf("report for %s is stale", "T-1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusConflict || len(body.Data) != 1 || body.Data[0].Code != "ERR_CONFLICT" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	c, rec = newContext(http.MethodGet, "")
	_ = AppErrorResponse(c, http.ErrBodyNotAllowed)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("plain errors map to 500, got %d", rec.Code)
	}
}

func TestValidateOutsideRequest(t *testing.T) {
	err := Validate(&sampleRequest{TrainID: "TOO-LONG-ID"})
	errs := ValidationErrors(err)
	if len(errs) != 1 || errs[0].Field != "train_id" || errs[0].Code != "ERR_MAX" {
		t.Fatalf("unexpected %+v", errs)
	}
}

func TestIdentifierRule(t *testing.T) {
	type idRequest struct {
		TrainID string `json:"train_id" validate:"required,identifier"`
	}
	for id, ok := range map[string]bool{"T-101": true, "IC_7.a:1": true, "T 101": false, "-T": false, "T/1": false} {
		errs := ValidationErrors(Validate(&idRequest{TrainID: id}))
		if ok && len(errs) != 0 {
			t.Fatalf("%q should pass, got %+v", id, errs)
		}
		if !ok && (len(errs) != 1 || errs[0].Code != "ERR_IDENTIFIER") {
			t.Fatalf("%q should fail identifier, got %+v", id, errs)
		}
	}
}
