package api

import "testing"

func TestJobManagerLifecycle(t *testing.T) {
	m := NewJobManager()

	jobID, snapshot := m.CreateJob([]string{"chapter1.pdf", "chapter2.pdf"})
	if snapshot.Status != JobStatusPending {
		t.Fatalf("expected pending status, got %q", snapshot.Status)
	}
	if len(snapshot.Files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(snapshot.Files))
	}

	m.MarkProcessing(jobID)
	m.MarkFileStarted(jobID, 0)
	m.UpdateFileProgress(jobID, 0, "generating", "Generating quiz questions", 40, 100)

	job, ok := m.GetJob(jobID)
	if !ok {
		t.Fatal("job not found after creation")
	}
	if job.Status != JobStatusProcessing {
		t.Errorf("expected processing status, got %q", job.Status)
	}
	if job.Files[0].Percent != 40 {
		t.Errorf("expected 40%% progress, got %d", job.Files[0].Percent)
	}

	m.MarkFileComplete(jobID, 0, DocumentResult{DocumentID: 1, Name: "chapter1.pdf", Status: "ok"})
	m.MarkFileError(jobID, 1, "unreadable PDF", DocumentResult{Name: "chapter2.pdf"})
	m.MarkCompleted(jobID)

	job, _ = m.GetJob(jobID)
	if job.Status != JobStatusComplete {
		t.Errorf("expected complete status, got %q", job.Status)
	}
	if job.Files[0].Status != FileStatusComplete {
		t.Errorf("expected first file complete, got %q", job.Files[0].Status)
	}
	if job.Files[1].Status != FileStatusError {
		t.Errorf("expected second file errored, got %q", job.Files[1].Status)
	}
	if job.Files[1].Error != "unreadable PDF" {
		t.Errorf("unexpected file error %q", job.Files[1].Error)
	}
	if len(job.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(job.Results))
	}
	if job.Results[1].Status != FileStatusError {
		t.Errorf("expected errored result status, got %q", job.Results[1].Status)
	}
}

func TestJobManagerSnapshotsAreCopies(t *testing.T) {
	m := NewJobManager()
	jobID, snapshot := m.CreateJob([]string{"doc.pdf"})

	snapshot.Status = "tampered"
	snapshot.Files[0].Name = "tampered"

	job, _ := m.GetJob(jobID)
	if job.Status != JobStatusPending {
		t.Errorf("stored job status mutated via snapshot: %q", job.Status)
	}
	if job.Files[0].Name != "doc.pdf" {
		t.Errorf("stored file name mutated via snapshot: %q", job.Files[0].Name)
	}
}

func TestJobManagerUnknownJob(t *testing.T) {
	m := NewJobManager()
	if _, ok := m.GetJob("no-such-job"); ok {
		t.Fatal("expected lookup of unknown job to fail")
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		current, total, want int
	}{
		{0, 100, 0},
		{50, 100, 50},
		{100, 100, 100},
		{150, 100, 100},
		{-5, 100, 0},
		{30, 0, 30},
		{200, 0, 100},
	}
	for _, tc := range cases {
		if got := percent(tc.current, tc.total); got != tc.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tc.current, tc.total, got, tc.want)
		}
	}
}
