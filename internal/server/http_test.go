package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/events"
	"github.com/alfredjeanlab/dealboard/internal/model"
	"github.com/alfredjeanlab/dealboard/internal/store"
)

type mockStore struct {
	mu      sync.Mutex
	deals   map[int64]*model.Deal
	stages  map[int64]*model.Stage
	changes []*model.StageChange

	// recordErr, when non-nil, is returned by RecordStageChange (for testing rollback).
	recordErr error
	// listErr, when non-nil, is returned by ListDeals.
	listErr error
	// onLock, when set, edits the stored deal as LockDeal reads it, standing
	// in for a writer that committed between the handler's checks and its
	// transaction.
	onLock func(d *model.Deal)
}

func newMockStore() *mockStore {
	return &mockStore{
		deals:  make(map[int64]*model.Deal),
		stages: make(map[int64]*model.Stage),
	}
}

func (m *mockStore) CreateDeal(_ context.Context, deal *model.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deal.ID == 0 {
		deal.ID = int64(len(m.deals) + 1)
	}
	m.deals[deal.ID] = deal.Clone()
	return nil
}

func (m *mockStore) GetDeal(_ context.Context, id int64) (*model.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (m *mockStore) LockDeal(_ context.Context, id int64) (*model.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	if m.onLock != nil {
		m.onLock(d)
	}
	return d.Clone(), nil
}

func (m *mockStore) ListDeals(_ context.Context, filter model.DealFilter) ([]*model.Deal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var result []*model.Deal
	for _, d := range m.deals {
		if filter.CompanyID != 0 && d.CompanyID != filter.CompanyID {
			continue
		}
		if len(filter.Stage) > 0 && !slices.Contains(filter.Stage, d.Stage) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, d.Clone())
	}
	slices.SortFunc(result, func(a, b *model.Deal) int { return int(a.ID - b.ID) })
	total := len(result)
	if filter.Offset > 0 {
		result = result[min(filter.Offset, len(result)):]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, total, nil
}

func (m *mockStore) UpdateDealStage(_ context.Context, id int64, stage string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return errors.New("no such deal")
	}
	d.Stage = stage
	d.UpdatedAt = at
	return nil
}

func (m *mockStore) CreateStage(_ context.Context, stage *model.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *stage
	m.stages[stage.ID] = &c
	return nil
}

func (m *mockStore) GetStage(_ context.Context, id int64) (*model.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stages[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *mockStore) ListStages(_ context.Context, companyID int64, includeInactive bool) ([]*model.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Stage
	for _, s := range m.stages {
		if companyID != 0 && s.CompanyID != companyID {
			continue
		}
		if !includeInactive && !s.Active {
			continue
		}
		c := *s
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *model.Stage) int { return a.Position - b.Position })
	return result, nil
}

func (m *mockStore) RecordStageChange(_ context.Context, change *model.StageChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	change.ID = int64(len(m.changes) + 1)
	c := *change
	m.changes = append(m.changes, &c)
	return nil
}

func (m *mockStore) GetStageHistory(_ context.Context, dealID int64) ([]*model.StageChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.StageChange
	for _, c := range m.changes {
		if c.DealID == dealID {
			cc := *c
			result = append(result, &cc)
		}
	}
	return result, nil
}

// RunInTransaction snapshots deal stages and restores them when fn fails.
func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]model.Deal, len(m.deals))
	for id, d := range m.deals {
		snapshot[id] = *d
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		for id, d := range snapshot {
			*m.deals[id] = d
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) historyLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changes)
}

// seed loads a two-company pipeline: company 1 has Lead, Qualified, Won and an
// inactive Archived stage; company 2 has its own Lead.
func (m *mockStore) seed() {
	ctx := context.Background()
	for _, s := range []*model.Stage{
		{ID: 10, CompanyID: 1, Name: "Lead", Position: 1, Active: true},
		{ID: 11, CompanyID: 1, Name: "Qualified", Position: 2, Active: true},
		{ID: 12, CompanyID: 1, Name: "Won", Position: 3, Active: true},
		{ID: 13, CompanyID: 1, Name: "Archived", Position: 4, Active: false},
		{ID: 20, CompanyID: 2, Name: "Lead", Position: 1, Active: true},
	} {
		_ = m.CreateStage(ctx, s)
	}
	for _, d := range []*model.Deal{
		{ID: 1, CompanyID: 1, Name: "Acme renewal", Stage: "Lead"},
		{ID: 2, CompanyID: 1, Name: "Globex expansion", Stage: "Qualified"},
		{ID: 3, CompanyID: 1, Name: "Initech pilot", Stage: "Lead", Locked: true},
		{ID: 4, CompanyID: 2, Name: "Umbrella", Stage: "Lead"},
	} {
		_ = m.CreateDeal(ctx, d)
	}
}

// newTestServer returns a fresh seeded server, its mock store, and an HTTP handler.
func newTestServer() (*DealServer, *mockStore, http.Handler) {
	ms := newMockStore()
	ms.seed()
	s := NewDealServer(ms, &events.MemoryPublisher{})
	s.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, ms, s.NewHTTPHandler("")
}

// published returns the events captured by the server's memory publisher.
func published(s *DealServer) []events.Published {
	return s.publisher.(*events.MemoryPublisher).Events()
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"GetDeal/NotFound", "GET", "/v1/deals/99", nil, 404, "deal not found"},
		{"GetDeal/InvalidID", "GET", "/v1/deals/abc", nil, 400, `invalid id "abc"`},
		{"GetDeal/ZeroID", "GET", "/v1/deals/0", nil, 400, `invalid id "0"`},
		{"ListDeals/InvalidCompany", "GET", "/v1/companies/x/deals", nil, 400, `invalid company "x"`},
		{"ListStages/InvalidCompany", "GET", "/v1/companies/-1/stages", nil, 400, `invalid company "-1"`},
		{"History/NotFound", "GET", "/v1/deals/99/history", nil, 404, "deal not found"},
		{"Move/MissingStage", "PATCH", "/v1/deals/1/stage", map[string]any{"company_id": 1}, 400, "stage_id is required"},
		{"Move/DealNotFound", "PATCH", "/v1/deals/99/stage", map[string]any{"stage_id": 11}, 404, "deal not found"},
		{"Move/WrongCompany", "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 11, "company_id": 2}, 400, "deal does not belong to this company"},
		{"Move/Locked", "PATCH", "/v1/deals/3/stage", map[string]any{"stage_id": 11}, 409, "deal 3 is locked"},
		{"Move/UnknownStage", "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 77}, 400, "stage 77 does not exist"},
		{"Move/OtherCompanyStage", "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 20}, 400, "stage 20 does not exist"},
		{"Move/InactiveStage", "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 13}, 400, `stage "Archived" is inactive`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, h := newTestServer()
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" {
				var body map[string]string
				decodeJSON(t, rec, &body)
				if body["error"] != tc.wantError {
					t.Fatalf("expected error=%q, got %q", tc.wantError, body["error"])
				}
			}
		})
	}
}

func TestHandleUpdateStage_InvalidJSON(t *testing.T) {
	_, _, h := newTestServer()
	req := httptest.NewRequest("PATCH", "/v1/deals/1/stage", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, 400)
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/health", nil)
	requireStatus(t, rec, 200)
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %q", body["status"])
	}
}

func TestHandleListDeals(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/companies/1/deals", nil)
	requireStatus(t, rec, 200)

	var resp struct {
		Deals []*model.Deal `json:"deals"`
		Total int           `json:"total"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Total != 3 || len(resp.Deals) != 3 {
		t.Fatalf("expected 3 deals for company 1, got total=%d len=%d", resp.Total, len(resp.Deals))
	}
	for _, d := range resp.Deals {
		if d.CompanyID != 1 {
			t.Fatalf("deal %d belongs to company %d", d.ID, d.CompanyID)
		}
	}
}

func TestHandleListDeals_WithFilters(t *testing.T) {
	_, _, h := newTestServer()

	for _, tc := range []struct {
		query string
		want  []int64
		total int
	}{
		{"?stage=Lead", []int64{1, 3}, 2},
		{"?stage=Lead,Qualified", []int64{1, 2, 3}, 3},
		{"?search=globex", []int64{2}, 1},
		{"?limit=1&offset=1", []int64{2}, 3},
		{"?limit=bogus", []int64{1, 2, 3}, 3},
	} {
		t.Run(tc.query, func(t *testing.T) {
			rec := doJSON(t, h, "GET", "/v1/companies/1/deals"+tc.query, nil)
			requireStatus(t, rec, 200)
			var resp struct {
				Deals []*model.Deal `json:"deals"`
				Total int           `json:"total"`
			}
			decodeJSON(t, rec, &resp)
			var got []int64
			for _, d := range resp.Deals {
				got = append(got, d.ID)
			}
			if !slices.Equal(got, tc.want) || resp.Total != tc.total {
				t.Fatalf("got ids=%v total=%d, want ids=%v total=%d", got, resp.Total, tc.want, tc.total)
			}
		})
	}
}

func TestHandleListDeals_EmptyIsArray(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/companies/5/deals", nil)
	requireStatus(t, rec, 200)
	if !strings.Contains(rec.Body.String(), `"deals":[]`) {
		t.Fatalf("expected empty deals array, got %s", rec.Body.String())
	}
}

func TestHandleListDeals_StoreError(t *testing.T) {
	_, ms, h := newTestServer()
	ms.listErr = errors.New("connection reset")
	rec := doJSON(t, h, "GET", "/v1/companies/1/deals", nil)
	requireStatus(t, rec, 500)
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["error"] != "failed to list deals" {
		t.Fatalf("expected generic error, got %q", body["error"])
	}
}

func TestHandleListStages(t *testing.T) {
	_, _, h := newTestServer()

	rec := doJSON(t, h, "GET", "/v1/companies/1/stages", nil)
	requireStatus(t, rec, 200)
	var resp struct {
		Stages []*model.Stage `json:"stages"`
	}
	decodeJSON(t, rec, &resp)
	var names []string
	for _, s := range resp.Stages {
		names = append(names, s.Name)
	}
	if !slices.Equal(names, []string{"Lead", "Qualified", "Won"}) {
		t.Fatalf("active stages = %v", names)
	}

	rec = doJSON(t, h, "GET", "/v1/companies/1/stages?all=true", nil)
	requireStatus(t, rec, 200)
	resp.Stages = nil
	decodeJSON(t, rec, &resp)
	if len(resp.Stages) != 4 {
		t.Fatalf("expected 4 stages with all=true, got %d", len(resp.Stages))
	}
}

func TestHandleGetDeal(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/deals/2", nil)
	requireStatus(t, rec, 200)
	var d model.Deal
	decodeJSON(t, rec, &d)
	if d.ID != 2 || d.Stage != "Qualified" {
		t.Fatalf("got deal %+v", d)
	}
}

func TestHandleUpdateStage(t *testing.T) {
	srv, ms, h := newTestServer()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return fixed }

	rec := doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{
		"stage_id": 11, "acting_user_id": 42, "company_id": 1,
	})
	requireStatus(t, rec, 200)

	var d model.Deal
	decodeJSON(t, rec, &d)
	if d.Stage != "Qualified" || !d.UpdatedAt.Equal(fixed) {
		t.Fatalf("response deal = %+v", d)
	}

	stored, _ := ms.GetDeal(context.Background(), 1)
	if stored.Stage != "Qualified" {
		t.Fatalf("stored stage = %q", stored.Stage)
	}

	history, _ := ms.GetStageHistory(context.Background(), 1)
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if h := history[0]; h.FromStage != "Lead" || h.ToStage != "Qualified" || h.ActorID != 42 || h.CompanyID != 1 {
		t.Fatalf("history entry = %+v", h)
	}

	evts := published(srv)
	if len(evts) != 1 || evts[0].Topic != events.TopicDealStageChanged {
		t.Fatalf("published = %+v", evts)
	}
	evt, err := events.DecodeStageChanged(evts[0].Data)
	if err != nil {
		t.Fatalf("DecodeStageChanged: %v", err)
	}
	if evt.FromStage != "Lead" || evt.ToStage != "Qualified" || evt.ActorID != 42 || evt.Deal.ID != 1 {
		t.Fatalf("event = %+v", evt)
	}
}

func TestHandleUpdateStage_SameStageIsNoop(t *testing.T) {
	srv, ms, h := newTestServer()

	rec := doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 10})
	requireStatus(t, rec, 200)

	if n := ms.historyLen(); n != 0 {
		t.Fatalf("expected no history for a same-stage move, got %d", n)
	}
	if evts := published(srv); len(evts) != 0 {
		t.Fatalf("expected no events, got %+v", evts)
	}
}

func TestHandleUpdateStage_RejectedPublishesEvent(t *testing.T) {
	srv, ms, h := newTestServer()

	rec := doJSON(t, h, "PATCH", "/v1/deals/3/stage", map[string]any{"stage_id": 11, "acting_user_id": 9})
	requireStatus(t, rec, 409)

	stored, _ := ms.GetDeal(context.Background(), 3)
	if stored.Stage != "Lead" {
		t.Fatalf("locked deal moved to %q", stored.Stage)
	}

	evts := published(srv)
	if len(evts) != 1 || evts[0].Topic != events.TopicDealMoveRejected {
		t.Fatalf("published = %+v", evts)
	}
	var rej events.DealMoveRejected
	if err := json.Unmarshal(evts[0].Data, &rej); err != nil {
		t.Fatal(err)
	}
	if rej.DealID != 3 || rej.CompanyID != 1 || rej.StageID != 11 || rej.ActorID != 9 || rej.Reason != "deal 3 is locked" {
		t.Fatalf("rejection = %+v", rej)
	}
}

func TestHandleUpdateStage_LockedBeforeTransaction(t *testing.T) {
	srv, ms, h := newTestServer()
	ms.onLock = func(d *model.Deal) { d.Locked = true }

	rec := doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 12, "acting_user_id": 9})
	requireStatus(t, rec, 409)

	stored, _ := ms.GetDeal(context.Background(), 1)
	if stored.Stage != "Lead" {
		t.Fatalf("deal locked mid-request moved to %q", stored.Stage)
	}
	if n := ms.historyLen(); n != 0 {
		t.Fatalf("expected no history, got %d", n)
	}
	evts := published(srv)
	if len(evts) != 1 || evts[0].Topic != events.TopicDealMoveRejected {
		t.Fatalf("published = %+v", evts)
	}
}

func TestHandleUpdateStage_MovedBeforeTransaction(t *testing.T) {
	tests := []struct {
		name        string
		movedTo     string
		wantHistory int
		wantFrom    string
	}{
		{"already at target", "Won", 0, ""},
		{"elsewhere", "Qualified", 1, "Qualified"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, ms, h := newTestServer()
			ms.onLock = func(d *model.Deal) { d.Stage = tc.movedTo }

			rec := doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 12})
			requireStatus(t, rec, 200)

			var d model.Deal
			decodeJSON(t, rec, &d)
			if d.Stage != "Won" {
				t.Fatalf("response stage = %q, want Won", d.Stage)
			}
			history, _ := ms.GetStageHistory(context.Background(), 1)
			if len(history) != tc.wantHistory {
				t.Fatalf("history = %+v, want %d entries", history, tc.wantHistory)
			}
			if tc.wantHistory > 0 && history[0].FromStage != tc.wantFrom {
				t.Errorf("from stage = %q, want %q", history[0].FromStage, tc.wantFrom)
			}
			if n := len(published(srv)); n != tc.wantHistory {
				t.Errorf("published %d events, want %d", n, tc.wantHistory)
			}
		})
	}
}

func TestHandleUpdateStage_RollbackOnHistoryFailure(t *testing.T) {
	srv, ms, h := newTestServer()
	ms.recordErr = errors.New("disk full")

	rec := doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 12})
	requireStatus(t, rec, 500)

	stored, _ := ms.GetDeal(context.Background(), 1)
	if stored.Stage != "Lead" {
		t.Fatalf("expected stage rollback to Lead, got %q", stored.Stage)
	}
	if evts := published(srv); len(evts) != 0 {
		t.Fatalf("expected no events after a failed move, got %+v", evts)
	}
}

func TestHandleGetStageHistory(t *testing.T) {
	_, _, h := newTestServer()

	rec := doJSON(t, h, "GET", "/v1/deals/1/history", nil)
	requireStatus(t, rec, 200)
	if !strings.Contains(rec.Body.String(), `"changes":[]`) {
		t.Fatalf("expected empty changes array, got %s", rec.Body.String())
	}

	requireStatus(t, doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 11}), 200)
	requireStatus(t, doJSON(t, h, "PATCH", "/v1/deals/1/stage", map[string]any{"stage_id": 12}), 200)

	rec = doJSON(t, h, "GET", "/v1/deals/1/history", nil)
	requireStatus(t, rec, 200)
	var resp struct {
		Changes []*model.StageChange `json:"changes"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(resp.Changes))
	}
	if resp.Changes[0].ToStage != "Qualified" || resp.Changes[1].FromStage != "Qualified" || resp.Changes[1].ToStage != "Won" {
		t.Fatalf("changes = %+v, %+v", resp.Changes[0], resp.Changes[1])
	}
}
