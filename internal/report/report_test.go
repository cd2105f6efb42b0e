package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/satfetch/internal/inspect"
	"github.com/pdiddy/satfetch/internal/ledger"
	"github.com/pdiddy/satfetch/internal/prepare"
	"github.com/pdiddy/satfetch/pkg/types"
)

func TestStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	Status(&buf, ledger.Summary{
		Downloaded: 120,
		Skipped:    30,
		Failed:     4,
		Blank:      2,
		Runs:       3,
		LastRun: &types.RunSummary{
			ID:         "9b1c",
			StartedAt:  start,
			FinishedAt: start.Add(95 * time.Second),
			Total:      154,
			Downloaded: 20,
			Skipped:    130,
			Failed:     4,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "downloaded")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "154")
	assert.Contains(t, out, "Runs: 3")
	assert.Contains(t, out, "Last run 9b1c")
	assert.Contains(t, out, "took 1m35s")
	assert.Contains(t, out, "total 154, downloaded 20, skipped 130, failed 4")
}

func TestStatusNoRuns(t *testing.T) {
	var buf bytes.Buffer
	Status(&buf, ledger.Summary{})
	assert.Contains(t, buf.String(), "No runs recorded.")
}

func TestStatusAbortedRun(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	Status(&buf, ledger.Summary{Runs: 1, LastRun: &types.RunSummary{
		ID: "r1", StartedAt: start, FinishedAt: start.Add(3 * time.Second), Aborted: true,
	}})
	assert.Contains(t, buf.String(), "aborted after 3s")
}

func TestFailures(t *testing.T) {
	var buf bytes.Buffer
	Failures(&buf, []types.ImageRecord{
		{PropertyID: "7129300520", HTTPStatus: 403, Error: "HTTP 403"},
		{PropertyID: "6414100192", Error: "dial tcp: connection refused"},
	})
	out := buf.String()
	assert.Contains(t, out, "7129300520")
	assert.Contains(t, out, "403")
	assert.Contains(t, out, "connection refused")
}

func TestFailuresEmpty(t *testing.T) {
	var buf bytes.Buffer
	Failures(&buf, nil)
	assert.Equal(t, "No failures recorded.\n", buf.String())
}

func TestVerify(t *testing.T) {
	var buf bytes.Buffer
	c := Verify(&buf, []inspect.FileReport{
		{Path: "/img/1.png", Info: inspect.Info{MeanColor: "#4a6b3c"}},
		{Path: "/img/2.png", Info: inspect.Info{Blank: true, MeanColor: "#e4e3df"}},
		{Path: "/img/3.png", Err: errors.New("decoding image: unexpected EOF")},
	})

	assert.Equal(t, VerifyCounts{Checked: 3, OK: 1, Blank: 1, Corrupt: 1}, c)
	out := buf.String()
	assert.Contains(t, out, "2.png")
	assert.Contains(t, out, "#e4e3df")
	assert.Contains(t, out, "unexpected EOF")
	assert.NotContains(t, out, "1.png")
	assert.Contains(t, out, "Checked 3 images: 1 ok, 1 blank, 1 corrupt")
}

func TestVerifyAllGood(t *testing.T) {
	var buf bytes.Buffer
	c := Verify(&buf, []inspect.FileReport{{Path: "a.png"}})
	assert.Equal(t, 1, c.OK)
	assert.Equal(t, "Checked 1 images: 1 ok, 0 blank, 0 corrupt\n", buf.String())
}

func TestPrepare(t *testing.T) {
	var buf bytes.Buffer
	Prepare(&buf, prepare.Report{Read: 10, Kept: 7, DuplicateID: 2, BadPrice: 1, HasPrice: true})
	out := buf.String()
	assert.Contains(t, out, "duplicate id")
	assert.Contains(t, out, "bad price")
	assert.Contains(t, out, "KEPT")

	buf.Reset()
	Prepare(&buf, prepare.Report{Read: 1, Kept: 1})
	assert.NotContains(t, buf.String(), "bad price")
}

func TestRecord(t *testing.T) {
	var buf bytes.Buffer
	Record(&buf, types.ImageRecord{
		PropertyID: "7129300520",
		Lat:        47.5112,
		Lon:        -122.257,
		Status:     types.StatusDownloaded,
		HTTPStatus: 200,
		Path:       "data/images/train/7129300520.png",
		Bytes:      4096,
		Width:      256,
		Height:     256,
		Blank:      true,
		MeanColor:  "#f5f5f5",
		RunID:      "9b1c",
		UpdatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	out := buf.String()
	assert.Contains(t, out, "7129300520")
	assert.Contains(t, out, "47.5112, -122.257")
	assert.Contains(t, out, "256x256 (4096 bytes)")
	assert.Contains(t, out, "yes, mean #f5f5f5")
	assert.Contains(t, out, "9b1c")
	assert.NotContains(t, out, "error")
}

func TestRecordFailure(t *testing.T) {
	var buf bytes.Buffer
	Record(&buf, types.ImageRecord{PropertyID: "1", Status: types.StatusFailed, HTTPStatus: 403, Error: "HTTP 403"})

	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "403")
	assert.Contains(t, out, "HTTP 403")
	assert.NotContains(t, out, "blank")
	assert.NotContains(t, out, "bytes")
}
