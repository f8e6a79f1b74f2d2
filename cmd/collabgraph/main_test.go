package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/collabgraph/internal/pipeline"
	"github.com/Sternrassler/collabgraph/internal/testutil"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"interrupted", fmt.Errorf("harvest: %w", errInterrupted), exitInterrupted},
		{"setup", &pipeline.SetupError{Op: "load roster", Err: errors.New("missing")}, exitSetup},
		{"other", errors.New("boom"), exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// isolate points HOME at a temp dir and clears credentials so no user config
// leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET",
		"COLLABGRAPH_SPOTIFY_CLIENT_ID", "COLLABGRAPH_SPOTIFY_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--log-pretty=false"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const testRoster = "name,id\nAlpha,a1\nBeta,a2\nGamma,a3\n"

const testEdges = `primary_artist_id,primary_artist,first_artist_id,first_artist,second_artist_id,second_artist,collaboration_count,tracks,track_ids
a1,Alpha,a1,Alpha,a2,Beta,2,Song A; Song B,t1;t2
a2,Beta,a2,Beta,a1,Alpha,1,Song A,t1
a2,Beta,a2,Beta,x9,Outsider,1,Song C,t3
`

func TestRun_HarvestWithoutCredentials(t *testing.T) {
	dir := isolate(t)

	code, _, stderr := runCLI(t, "harvest", "--roster", filepath.Join(dir, "roster.csv"))
	if code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
	if !strings.Contains(stderr, "credentials") {
		t.Errorf("stderr = %q, want credentials error", stderr)
	}
}

func TestRun_HarvestMissingRoster(t *testing.T) {
	dir := isolate(t)
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

	code, _, stderr := runCLI(t, "harvest", "--roster", filepath.Join(dir, "missing.csv"))
	if code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
	if !strings.Contains(stderr, "roster file not found") {
		t.Errorf("stderr = %q, want roster error", stderr)
	}
}

func TestRun_InvalidMode(t *testing.T) {
	isolate(t)

	code, _, _ := runCLI(t, "harvest", "--mode", "sideways")
	if code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
}

func TestRun_Status(t *testing.T) {
	dir := isolate(t)
	rosterPath := filepath.Join(dir, "roster.csv")
	edgesPath := filepath.Join(dir, "edges.csv")
	writeTestFile(t, rosterPath, testRoster)
	writeTestFile(t, edgesPath, testEdges)

	code, stdout, stderr := runCLI(t, "status", "--roster", rosterPath, "--output", edgesPath)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	for _, want := range []string{"Roster:     3 artists", "Processed:  2", "Remaining:  1", "Gamma"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "Alpha") {
		t.Errorf("processed artist listed as pending:\n%s", stdout)
	}
}

func TestRun_Matrix(t *testing.T) {
	dir := isolate(t)
	rosterPath := filepath.Join(dir, "roster.csv")
	edgesPath := filepath.Join(dir, "edges.csv")
	matrixPath := filepath.Join(dir, "matrix.csv")
	detailsPath := filepath.Join(dir, "details.csv")
	writeTestFile(t, rosterPath, testRoster)
	writeTestFile(t, edgesPath, testEdges)

	code, stdout, stderr := runCLI(t, "matrix",
		"--roster", rosterPath,
		"--output", edgesPath,
		"--matrix-out", matrixPath,
		"--details-out", detailsPath,
	)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Total collaborations found: 1") {
		t.Errorf("stdout = %q", stdout)
	}

	matrix, err := os.ReadFile(matrixPath)
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(matrix)), "\n")
	if len(lines) != 4 {
		t.Fatalf("matrix has %d lines, want 4:\n%s", len(lines), matrix)
	}
	if lines[0] != ",Alpha,Beta,Gamma" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "Alpha,0,1,0" {
		t.Errorf("Alpha row = %q", lines[1])
	}

	details, err := os.ReadFile(detailsPath)
	if err != nil {
		t.Fatalf("read details: %v", err)
	}
	if !strings.Contains(string(details), "Alpha,Beta,2") {
		t.Errorf("details = %s", details)
	}
	if strings.Contains(string(details), "Outsider") {
		t.Errorf("details include artist outside the roster:\n%s", details)
	}
}

func TestRun_Details(t *testing.T) {
	dir := isolate(t)
	mock := testutil.NewMockSpotify()
	defer mock.Close()
	mock.AddArtistDetails(
		testutil.MockArtistDetails{ID: "a1", Name: "Alpha", Popularity: 80, Followers: 5000, Genres: []string{"pop"}},
		testutil.MockArtistDetails{ID: "a2", Name: "Beta", Popularity: 55, Followers: 120},
	)

	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("COLLABGRAPH_SPOTIFY_BASE_URL", mock.URL())
	t.Setenv("COLLABGRAPH_SPOTIFY_TOKEN_URL", mock.TokenURL())

	rosterPath := filepath.Join(dir, "roster.csv")
	outPath := filepath.Join(dir, "details.csv")
	writeTestFile(t, rosterPath, testRoster)

	code, stdout, stderr := runCLI(t, "details", "--roster", rosterPath, "--details-out", outPath)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Saved 2 artists") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "No details for a3") {
		t.Errorf("stderr = %q, want missing a3", stderr)
	}
	if got := mock.PathCount("/artists"); got != 1 {
		t.Errorf("/artists requests = %d, want 1", got)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read details: %v", err)
	}
	want := "id,name,popularity,followers,genres\na1,Alpha,80,5000,pop\na2,Beta,55,120,\n"
	if string(out) != want {
		t.Errorf("details =\n%s\nwant\n%s", out, want)
	}
}

func TestRun_DetailsWithoutCredentials(t *testing.T) {
	isolate(t)

	code, _, _ := runCLI(t, "details")
	if code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
}
