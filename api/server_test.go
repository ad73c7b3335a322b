package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/api"
	"github.com/kdgroup/jobledger/observability"
	"github.com/kdgroup/jobledger/store/memory"
)

var base = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newClient(t *testing.T, serverNow time.Time) *client {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	e := jobledger.New(memory.New(),
		jobledger.WithClock(func() time.Time { return base }),
		jobledger.WithPlugin(metrics),
	)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	s := api.New(e,
		api.WithClock(func() time.Time { return serverNow }),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	srv := httptest.NewServer(s.Routes("/api"))
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv}
}

// do sends a request as role (no actor headers when role is empty) and
// decodes the response into out when out is non-nil.
func (c *client) do(method, path, role string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	if err != nil {
		c.t.Fatal(err)
	}
	if role != "" {
		req.Header.Set(api.HeaderActorID, "u-"+role)
		req.Header.Set(api.HeaderActorRole, role)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type jobBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errBody struct {
	Error   string   `json:"error"`
	Unmet   []string `json:"unmet"`
	Details []string `json:"details"`
}

func createJob(t *testing.T, c *client) string {
	t.Helper()
	var l struct {
		ID string `json:"id"`
	}
	status := c.do(http.MethodPost, "/api/leads", "sales_rep", map[string]any{
		"source":         "Angi",
		"customer_name":  "Rivera",
		"contract_value": map[string]any{"amount": 1_000_000, "currency": "usd"},
	}, &l)
	if status != http.StatusCreated {
		t.Fatalf("create lead: status %d", status)
	}

	var j jobBody
	status = c.do(http.MethodPost, "/api/jobs", "sales_rep", map[string]any{
		"customer_name": "Rivera",
		"lead_id":       l.ID,
	}, &j)
	if status != http.StatusCreated || j.Status != "lead" {
		t.Fatalf("create job: status %d, job %+v", status, j)
	}
	return j.ID
}

func TestHealthAndMetrics(t *testing.T) {
	c := newClient(t, base)
	if status := c.do(http.MethodGet, "/healthz", "", nil, nil); status != http.StatusOK {
		t.Fatalf("healthz: %d", status)
	}
	createJob(t, c)

	resp, err := c.srv.Client().Get(c.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "jobledger_job_created_total 1") {
		t.Fatalf("metrics output missing job counter:\n%s", buf.String())
	}
}

func TestActorHeadersRequired(t *testing.T) {
	c := newClient(t, base)
	var body errBody
	status := c.do(http.MethodPost, "/api/leads", "", map[string]any{"source": "Angi"}, &body)
	if status != http.StatusUnauthorized || !strings.Contains(body.Error, api.HeaderActorRole) {
		t.Fatalf("status %d, body %+v", status, body)
	}
}

func TestTransitionOverHTTP(t *testing.T) {
	c := newClient(t, base)
	jobID := createJob(t, c)
	path := "/api/jobs/" + jobID

	var e errBody
	status := c.do(http.MethodPost, path+"/transitions", "sales_rep", map[string]any{"from": "lead", "to": "sold"}, &e)
	if status != http.StatusUnprocessableEntity || len(e.Unmet) != 2 {
		t.Fatalf("unmet requirements: status %d, body %+v", status, e)
	}

	status = c.do(http.MethodPost, path+"/transitions", "sales_rep", map[string]any{"from": "lead", "to": "complete"}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("illegal edge: status %d", status)
	}

	status = c.do(http.MethodPatch, path, "sales_rep", map[string]any{
		"contract":     map[string]any{"url": "contract.pdf"},
		"down_payment": map[string]any{"url": "deposit.jpg"},
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("patch: status %d", status)
	}

	var reqs struct {
		Satisfied bool `json:"satisfied"`
	}
	if status := c.do(http.MethodGet, path+"/requirements?to=sold", "", nil, &reqs); status != http.StatusOK || !reqs.Satisfied {
		t.Fatalf("requirements: status %d, %+v", status, reqs)
	}

	if status := c.do(http.MethodPost, path+"/transitions", "contractor", map[string]any{"from": "lead", "to": "sold"}, nil); status != http.StatusForbidden {
		t.Fatalf("contractor: status %d", status)
	}

	var res struct {
		Job      jobBody `json:"job"`
		Replayed bool    `json:"replayed"`
	}
	status = c.do(http.MethodPost, path+"/transitions", "sales_rep", map[string]any{"from": "lead", "to": "sold", "request_id": "evt-1"}, &res)
	if status != http.StatusOK || res.Job.Status != "sold" || res.Replayed {
		t.Fatalf("transition: status %d, %+v", status, res)
	}

	status = c.do(http.MethodPost, path+"/transitions", "sales_rep", map[string]any{"from": "lead", "to": "sold", "request_id": "evt-1"}, &res)
	if status != http.StatusOK || !res.Replayed {
		t.Fatalf("replay: status %d, %+v", status, res)
	}

	if status := c.do(http.MethodPost, path+"/transitions", "sales_rep", map[string]any{"from": "lead", "to": "sold"}, nil); status != http.StatusConflict {
		t.Fatalf("stale from: status %d", status)
	}

	var allowed struct {
		Targets []string `json:"targets"`
	}
	if status := c.do(http.MethodGet, path+"/transitions", "pm", nil, &allowed); status != http.StatusOK || len(allowed.Targets) != 3 {
		t.Fatalf("allowed: status %d, %+v", status, allowed)
	}
}

func TestInvoiceRoutes(t *testing.T) {
	c := newClient(t, base.AddDate(0, 0, 45))

	var e errBody
	status := c.do(http.MethodPost, "/api/invoices", "admin", map[string]any{
		"from":       map[string]any{"entity": "nowhere"},
		"to":         map[string]any{"entity": "customer"},
		"line_items": []any{},
	}, &e)
	if status != http.StatusBadRequest || len(e.Details) != 2 {
		t.Fatalf("validation: status %d, body %+v", status, e)
	}

	var inv struct {
		ID            string `json:"id"`
		InvoiceNumber string `json:"invoice_number"`
		Status        string `json:"status"`
		DisplayStatus string `json:"display_status"`
		Total         struct {
			Amount int64 `json:"amount"`
		} `json:"total"`
	}
	status = c.do(http.MethodPost, "/api/invoices", "admin", map[string]any{
		"from": map[string]any{"entity": "kr", "name": "KR Renovation"},
		"to":   map[string]any{"entity": "customer", "name": "Rivera"},
		"line_items": []any{
			map[string]any{"description": "Tile install", "quantity": "2", "rate": map[string]any{"amount": 12_500, "currency": "usd"}},
		},
	}, &inv)
	if status != http.StatusCreated {
		t.Fatalf("create: status %d", status)
	}
	if inv.InvoiceNumber != "KR-2026-0001" || inv.Total.Amount != 25_000 || inv.Status != "draft" {
		t.Fatalf("invoice = %+v", inv)
	}

	if status := c.do(http.MethodPost, "/api/invoices/"+inv.ID+"/send", "admin", nil, &inv); status != http.StatusOK {
		t.Fatalf("send: status %d", status)
	}
	if inv.DisplayStatus != "overdue" {
		t.Fatalf("display status = %s, want overdue", inv.DisplayStatus)
	}

	if status := c.do(http.MethodPost, "/api/invoices/"+inv.ID+"/pay", "admin", nil, nil); status != http.StatusOK {
		t.Fatalf("pay: status %d", status)
	}
	if status := c.do(http.MethodPost, "/api/invoices/"+inv.ID+"/pay", "admin", nil, nil); status != http.StatusConflict {
		t.Fatalf("pay twice: status %d", status)
	}

	var months []struct {
		Month string `json:"month"`
		Count int    `json:"count"`
	}
	if status := c.do(http.MethodGet, "/api/reports/monthly", "", nil, &months); status != http.StatusOK || len(months) != 1 || months[0].Month != "2026-03" {
		t.Fatalf("monthly: status %d, %+v", status, months)
	}

	if status := c.do(http.MethodGet, "/api/invoices/inv_nope", "", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", status)
	}
	if status := c.do(http.MethodGet, "/api/reports/pnl?entity=customer", "", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("external entity pnl: status %d", status)
	}
	if status := c.do(http.MethodPost, "/api/reports/export", "admin", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("export without sink: status %d", status)
	}
}
