package gcsuploader

import "testing"

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://exports/ledger/2024-01-01.json", wantBucket: "exports", wantObject: "ledger/2024-01-01.json"},
		{uri: "gs://exports/a", wantBucket: "exports", wantObject: "a"},
		{uri: "s3://exports/a", wantErr: true},
		{uri: "gs://exports", wantErr: true},
		{uri: "gs://exports/", wantErr: true},
		{uri: "gs:///object", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI(%q) = %q, %q", tt.uri, bucket, object)
			}
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	bucket, object, err := ParseGCSURI(URI("b", "x/y.json"))
	if err != nil || bucket != "b" || object != "x/y.json" {
		t.Fatalf("round trip = %q, %q, %v", bucket, object, err)
	}
}
