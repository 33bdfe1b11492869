package endpoint

import (
	"testing"

	"github.com/authplane/authplane/internal/config"
)

func testEnv() *config.Environment {
	return &config.Environment{
		Name:       "staging",
		ProjectRef: "abcdefghijklmnop",
		Region:     "us-east-1",
		PoolerPort: 6543,
		DirectPort: 5432,
		Database:   "postgres",
		User:       "postgres",
		Password:   "secret",
	}
}

func TestCandidatesPooledFirstDirectLast(t *testing.T) {
	t.Parallel()

	eps := Candidates(testEnv())
	if len(eps) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(eps))
	}

	if eps[0].Label != "pooler" {
		t.Fatalf("Expected pooler first, got %q", eps[0].Label)
	}
	if eps[0].Host != "aws-0-us-east-1.pooler.supabase.com" {
		t.Fatalf("Unexpected pooler host %q", eps[0].Host)
	}
	if eps[0].Port != 6543 {
		t.Fatalf("Expected pooler port 6543, got %d", eps[0].Port)
	}
	if eps[0].User != "postgres.abcdefghijklmnop" {
		t.Fatalf("Expected project-qualified pooler user, got %q", eps[0].User)
	}

	last := eps[len(eps)-1]
	if last.Label != "direct" {
		t.Fatalf("Expected direct endpoint last, got %q", last.Label)
	}
	if last.Host != "db.abcdefghijklmnop.supabase.co" {
		t.Fatalf("Unexpected direct host %q", last.Host)
	}
	if last.User != "postgres" {
		t.Fatalf("Expected plain user on direct endpoint, got %q", last.User)
	}
}

func TestCandidatesWithoutRegion(t *testing.T) {
	t.Parallel()

	env := testEnv()
	env.Region = ""
	env.DirectHost = "db.internal.example.com"

	eps := Candidates(env)
	if len(eps) != 1 {
		t.Fatalf("Expected only the direct endpoint, got %d", len(eps))
	}
	if eps[0].Label != "direct" {
		t.Fatalf("Expected direct endpoint, got %q", eps[0].Label)
	}
	if eps[0].Host != "db.internal.example.com" {
		t.Fatalf("Expected direct host override, got %q", eps[0].Host)
	}
}

func TestCandidatesDirectHostOverride(t *testing.T) {
	t.Parallel()

	env := testEnv()
	env.DirectHost = "10.0.0.5"

	eps := Candidates(env)
	last := eps[len(eps)-1]
	if last.Host != "10.0.0.5" {
		t.Fatalf("Expected overridden direct host, got %q", last.Host)
	}
}

func TestAddr(t *testing.T) {
	t.Parallel()

	ep := Endpoint{Host: "db.example.com", Port: 5432}
	if ep.Addr() != "db.example.com:5432" {
		t.Fatalf("Unexpected Addr %q", ep.Addr())
	}
}
