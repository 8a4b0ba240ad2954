package sync

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type putObject struct {
	key         string
	body        string
	contentType string
	metadata    map[string]string
}

// fakePutter records uploads and fails for keys listed in failKeys.
type fakePutter struct {
	puts     []putObject
	failKeys map[string]bool
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.failKeys[key] {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, putObject{
		key:         key,
		body:        string(body),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	})
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination_ArchivesThenUpdatesLatest(t *testing.T) {
	putter := &fakePutter{}
	dest := newS3Destination(putter, "crm-backups", "acme")

	snap := Snapshot{
		Summary: Summary{
			TakenAt:   time.Date(2026, 4, 9, 17, 5, 30, 0, time.UTC),
			Companies: 1,
			Stages:    3,
			Deals:     12,
			Changes:   40,
		},
		Data: []byte("{\"type\":\"header\"}\n"),
	}
	if err := dest.Write(context.Background(), snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	if len(putter.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(putter.puts))
	}
	wantKeys := []string{"acme/archive/2026/04/09/170530Z.jsonl", "acme/latest.jsonl"}
	for i, p := range putter.puts {
		if p.key != wantKeys[i] {
			t.Errorf("put %d key = %q, want %q", i, p.key, wantKeys[i])
		}
		if p.body != string(snap.Data) {
			t.Errorf("put %d body = %q", i, p.body)
		}
		if p.contentType != "application/x-ndjson" {
			t.Errorf("put %d content type = %q", i, p.contentType)
		}
		want := map[string]string{
			"taken-at":      "2026-04-09T17:05:30Z",
			"companies":     "1",
			"stages":        "3",
			"deals":         "12",
			"stage-changes": "40",
		}
		for k, v := range want {
			if p.metadata[k] != v {
				t.Errorf("put %d metadata[%s] = %q, want %q", i, k, p.metadata[k], v)
			}
		}
	}
}

func TestS3Destination_ArchiveFailureKeepsLatest(t *testing.T) {
	at := time.Date(2026, 4, 9, 17, 5, 30, 0, time.UTC)
	putter := &fakePutter{failKeys: map[string]bool{"acme/archive/2026/04/09/170530Z.jsonl": true}}
	dest := newS3Destination(putter, "crm-backups", "acme")

	err := dest.Write(context.Background(), Snapshot{Summary: Summary{TakenAt: at}, Data: []byte("{}\n")})
	if err == nil || !strings.Contains(err.Error(), "acme/archive/2026/04/09/170530Z.jsonl") {
		t.Fatalf("err = %v", err)
	}
	if len(putter.puts) != 0 {
		t.Fatalf("latest should not be written after a failed archive, got %+v", putter.puts)
	}
}

func TestS3Destination_Keys(t *testing.T) {
	for _, tc := range []struct {
		prefix      string
		at          time.Time
		wantLatest  string
		wantArchive string
		wantName    string
	}{
		{
			prefix:      "dealboard",
			at:          time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
			wantLatest:  "dealboard/latest.jsonl",
			wantArchive: "dealboard/archive/2026/12/31/235959Z.jsonl",
			wantName:    "s3://bucket/dealboard/",
		},
		{
			// Archive keys are always UTC.
			prefix:      "tenants/acme/",
			at:          time.Date(2027, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600)),
			wantLatest:  "tenants/acme/latest.jsonl",
			wantArchive: "tenants/acme/archive/2027/01/01/000000Z.jsonl",
			wantName:    "s3://bucket/tenants/acme/",
		},
	} {
		t.Run(tc.prefix, func(t *testing.T) {
			d := newS3Destination(&fakePutter{}, "bucket", tc.prefix)
			if got := d.LatestKey(); got != tc.wantLatest {
				t.Errorf("LatestKey() = %q, want %q", got, tc.wantLatest)
			}
			if got := d.ArchiveKey(tc.at); got != tc.wantArchive {
				t.Errorf("ArchiveKey() = %q, want %q", got, tc.wantArchive)
			}
			if got := d.Name(); got != tc.wantName {
				t.Errorf("Name() = %q, want %q", got, tc.wantName)
			}
		})
	}
}
