package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newHandlerContext(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandlerCreateClaim(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	svc := env.addService(time.Now().AddDate(0, 0, -10), 120)

	h := NewHandler(env.svc)
	e := echo.New()
	body := fmt.Sprintf(`{"client_id":%q,"payer_id":%q,"service_ids":[%q]}`,
		uuid.New(), p.ID, svc.ID)
	c, rec := newHandlerContext(e, http.MethodPost, "/api/v1/claims", body)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status, _ := got["status"].(string); status != string(StatusDraft) {
		t.Errorf("expected DRAFT, got %q", status)
	}
	number, _ := got["claim_number"].(string)
	if !strings.HasPrefix(number, "CLM-") {
		t.Errorf("unexpected claim number %q", number)
	}
	if total, _ := got["total_amount"].(float64); total != 120 {
		t.Errorf("expected total 120, got %v", total)
	}
}

func TestHandlerCreateClaimRejectsBadPayload(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	// service_ids is required with at least one entry
	body := fmt.Sprintf(`{"client_id":%q,"payer_id":%q,"service_ids":[]}`,
		uuid.New(), uuid.New())
	c, _ := newHandlerContext(e, http.MethodPost, "/api/v1/claims", body)

	err := h.Create(c)
	if err == nil {
		t.Fatal("expected validation error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandlerGetUnknownClaim(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodGet, "/api/v1/claims/x", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestHandlerRejectsMalformedID(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	c, _ := newHandlerContext(e, http.MethodGet, "/api/v1/claims/x", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandlerSubmitReportsValidationIssues(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	claim := env.addClaim(p)
	breakDocumentation(env, claim.ID)

	h := NewHandler(env.svc)
	e := echo.New()
	c, _ := newHandlerContext(e, http.MethodPost, "/api/v1/claims/x/submit", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())

	err := h.Submit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", httpErr.Code)
	}
	payload, ok := httpErr.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured message, got %T", httpErr.Message)
	}
	issues, ok := payload["errors"].([]ValidationIssue)
	if !ok || len(issues) == 0 {
		t.Errorf("expected validation issues in response, got %v", payload["errors"])
	}
}

func TestHandlerTransitionConflict(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	claim := env.addClaim(p)

	h := NewHandler(env.svc)
	e := echo.New()
	c, _ := newHandlerContext(e, http.MethodPost, "/api/v1/claims/x/transition",
		`{"target":"PAID","paid_amount":100}`)
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())

	err := h.Transition(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", httpErr.Code)
	}
	if got := mustGet(env, claim.ID); got.Status != StatusDraft {
		t.Errorf("claim should remain DRAFT, got %s", got.Status)
	}
}

func TestHandlerVoid(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	claim := env.addClaim(p)

	h := NewHandler(env.svc)
	e := echo.New()
	c, rec := newHandlerContext(e, http.MethodPost, "/api/v1/claims/x/void",
		`{"notes":"entered in error"}`)
	c.SetParamNames("id")
	c.SetParamValues(claim.ID.String())

	if err := h.Void(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status, _ := got["status"].(string); status != string(StatusVoid) {
		t.Errorf("expected VOID, got %q", status)
	}
}

func TestHandlerListFiltersByStatus(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	draft := env.addClaim(p)
	voided := env.addClaim(p)
	if _, err := env.svc.Void(context.Background(), voided.ID, nil, nil); err != nil {
		t.Fatalf("void: %v", err)
	}

	h := NewHandler(env.svc)
	e := echo.New()
	c, rec := newHandlerContext(e, http.MethodGet, "/api/v1/claims?status=DRAFT", "")

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got struct {
		Data  []Claim `json:"data"`
		Total int     `json:"total"`
		Limit int     `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Total != 1 || len(got.Data) != 1 {
		t.Fatalf("expected a single DRAFT claim, got total=%d len=%d", got.Total, len(got.Data))
	}
	if got.Data[0].ID != draft.ID {
		t.Errorf("expected %s, got %s", draft.ID, got.Data[0].ID)
	}
}

func TestHandlerBatchValidate(t *testing.T) {
	env := newTestEnv()
	p := env.addPayer()
	good := env.addClaim(p)
	bad := env.addClaim(p)
	breakDocumentation(env, bad.ID)

	h := NewHandler(env.svc)
	e := echo.New()
	body := fmt.Sprintf(`{"claim_ids":[%q,%q]}`, good.ID, bad.ID)
	c, rec := newHandlerContext(e, http.MethodPost, "/api/v1/claims/batch/validate", body)

	if err := h.BatchValidate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if total, _ := got["total_processed"].(float64); total != 2 {
		t.Errorf("expected 2 processed, got %v", got["total_processed"])
	}
	if errs, _ := got["error_count"].(float64); errs != 1 {
		t.Errorf("expected 1 failure, got %v", got["error_count"])
	}
}
