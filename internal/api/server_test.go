package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/storage/memory"
	"github.com/mferrill/workherald/internal/submit"
	"github.com/mferrill/workherald/internal/workmeta"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return "job-" + string(rune('0'+g.n)), nil
}

func newTestServer(t *testing.T) (*Server, *memory.JobStore, *memory.SubscriberStore) {
	t.Helper()
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	jobs := memory.NewJobStore(clock)
	subs := memory.NewSubscriberStore()
	service := submit.New(jobs, subs, &seqIDs{}, clock, zap.NewNop())
	return NewServer(service, jobs, zap.NewNop()), jobs, subs
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobReturnsAccepted(t *testing.T) {
	t.Parallel()

	srv, jobs, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{
		"url":          "https://example.test/works/1",
		"requester_id": "u1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])

	job, err := jobs.GetJob(context.Background(), resp["job_id"])
	require.NoError(t, err)
	require.Equal(t, workmeta.StatePending, job.State)
}

func TestSubmitDuplicateURLCoalesces(t *testing.T) {
	t.Parallel()

	srv, _, subs := newTestServer(t)

	first := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{
		"url": "https://example.test/works/1", "requester_id": "u1",
	})
	require.Equal(t, http.StatusAccepted, first.Code)
	second := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{
		"url": "https://example.test/works/1", "requester_id": "u2",
	})
	require.Equal(t, http.StatusAccepted, second.Code)

	var a, b map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	require.Equal(t, a["job_id"], b["job_id"])

	list, err := subs.ListSubscribers(context.Background(), a["job_id"])
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{"url": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobStatus(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{
		"url": "https://example.test/works/1", "requester_id": "u1",
	})
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+resp["job_id"], nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var body struct {
		Job workmeta.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &body))
	require.Equal(t, "https://example.test/works/1", body.Job.URL)

	missing := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	missingRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(missingRec, missing)
	require.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestSubscribeEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, subs := newTestServer(t)

	rec := postJSON(t, srv.Handler(), "/v1/jobs", map[string]any{
		"url": "https://example.test/works/1", "requester_id": "u1",
	})
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]

	subRec := postJSON(t, srv.Handler(), "/v1/jobs/"+jobID+"/subscribe", map[string]any{
		"requester_id": "u2",
		"mention":      false,
	})
	require.Equal(t, http.StatusNoContent, subRec.Code)

	list, err := subs.ListSubscribers(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.False(t, list[1].Mention)

	missingRec := postJSON(t, srv.Handler(), "/v1/jobs/nope/subscribe", map[string]any{
		"requester_id": "u2",
	})
	require.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
